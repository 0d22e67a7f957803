package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeeper/extractor/internal/core/types"
)

func testConfig() Config {
	return Config{
		QualityThreshold:      70,
		MaxFailuresBeforeHeal: 1,
		UC2MaxRetries:         2,
		UC3MaxRetries:         2,
		MaxLoops:              10,
	}
}

func TestRoute_InitialWithNoSelectorRecordGoesToUC3(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextUC3, next)
	// The initial start->uc1/uc3 hop isn't a completed use-case pair, so it
	// does not consume any of the LoopCount budget.
	assert.Equal(t, 0, out.LoopCount)
}

func TestRoute_InitialWithSelectorRecordGoesToUC1(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.SelectorRecord = &types.SelectorRecord{Site: "example.test"}
	next, _ := Route(s, testConfig())
	assert.Equal(t, types.NextUC1, next)
}

// TestRoute_UC1FailureEscalatesOnFirstFailure guards against regressing the
// off-by-one where FailureCount was incremented before this check, making
// "1 < 1" false and ending the run instead of escalating to UC2.
func TestRoute_UC1FailureEscalatesOnFirstFailure(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC1
	s.FailureCount = 0
	s.UC1Report = &types.QualityReport{Score: 10}

	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextUC2, next)
	assert.Equal(t, 1, out.FailureCount)
}

func TestRoute_UC1SuccessEndsOk(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC1
	s.UC1Report = &types.QualityReport{Score: 95}

	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "ok", out.TerminalReason)
	assert.True(t, out.Done)
}

func TestRoute_UC1FailureAfterBudgetExhaustedEndsQualityExhausted(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC1
	s.FailureCount = 1
	s.UC1Report = &types.QualityReport{Score: 10}

	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "quality_exhausted", out.TerminalReason)
}

func TestRoute_UC1FailureAfterPostDiscoveryEndsImmediately(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC1
	s.FailureCount = 0
	s.LastUC3WasAccept = true
	s.UC1Report = &types.QualityReport{Score: 10}

	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "post_discovery_quality_failed", out.TerminalReason)
	assert.False(t, out.LastUC3WasAccept)
}

func TestRoute_UC2AcceptedGoesToUC1AndResetsFailureCount(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC2
	s.FailureCount = 1
	s.RetryCounts[types.UseCaseUC2] = 1
	s.UC2Result = &types.ConsensusResult{Tier: types.TierHigh}

	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextUC1, next)
	assert.Equal(t, 0, out.FailureCount)
	assert.Equal(t, 0, out.RetryCounts[types.UseCaseUC2])
	assert.Equal(t, 1, out.LoopCount)
}

// TestRoute_UC2AcceptAtLoopBoundEndsInsteadOfReturningToUC1 guards the fix
// for the loop-count bug: LoopCount must be bounded per completed
// heal/discovery pair, not per raw transition, or a single UC2 heal cycle
// (already four transitions: uc1->uc2, uc2->uc1, plus the bracketing
// start/end hops) blows past a per-transition cap before the healed
// selectors ever get re-verified by UC1 (spec §8 Scenario B).
func TestRoute_UC2AcceptAtLoopBoundEndsInsteadOfReturningToUC1(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLoops = 1
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC2
	s.UC2Result = &types.ConsensusResult{Tier: types.TierHigh}

	next, out := Route(s, cfg)
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "loop_bound", out.TerminalReason)
	assert.Equal(t, 1, out.LoopCount)
}

func TestRoute_UC2RejectedRetriesUntilExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.UC2MaxRetries = 1
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC2
	s.UC2Result = &types.ConsensusResult{Tier: types.TierReject}

	next, out := Route(s, cfg)
	assert.Equal(t, types.NextUC2, next)
	assert.Equal(t, 1, out.RetryCounts[types.UseCaseUC2])

	out.CurrentUC = types.UC2
	next, out = Route(out, cfg)
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "uc2_exhausted", out.TerminalReason)
}

func TestRoute_UC3AcceptedGoesToUC1MarksLastUC3Accept(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC3
	s.UC3Result = &types.ConsensusResult{Tier: types.TierMedium}

	next, out := Route(s, testConfig())
	assert.Equal(t, types.NextUC1, next)
	assert.True(t, out.LastUC3WasAccept)
	assert.Equal(t, 1, out.LoopCount)
}

func TestRoute_UC3AcceptAtLoopBoundEndsInsteadOfReturningToUC1(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLoops = 1
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC3
	s.UC3Result = &types.ConsensusResult{Tier: types.TierHigh}

	next, out := Route(s, cfg)
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "loop_bound", out.TerminalReason)
	assert.Equal(t, 1, out.LoopCount)
}

func TestRoute_UC3RejectedRetriesThenDiscoveryFailed(t *testing.T) {
	cfg := testConfig()
	cfg.UC3MaxRetries = 1
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC3
	s.UC3Result = &types.ConsensusResult{Tier: types.TierReject}

	next, out := Route(s, cfg)
	assert.Equal(t, types.NextUC3, next)

	out.CurrentUC = types.UC3
	next, out = Route(out, cfg)
	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "discovery_failed", out.TerminalReason)
}

// TestRoute_ScenarioB_HealCycleCompletesWithinDefaultLoopBudget reproduces
// spec §8 Scenario B end-to-end at the supervisor layer: a known site whose
// selectors have drifted, UC1 fails, UC2 heals with high consensus, and the
// re-verifying UC1 pass succeeds — all within a single default MAX_LOOPS=3
// budget, exactly matching the scenario's required history.
func TestRoute_ScenarioB_HealCycleCompletesWithinDefaultLoopBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLoops = 3

	s := types.NewMasterState("https://example.test/a/2", "yonhap", types.Hints{})
	s.SelectorRecord = &types.SelectorRecord{Site: "yonhap"}

	next, s := Route(s, cfg) // start -> uc1
	require.Equal(t, types.NextUC1, next)

	s.CurrentUC = types.UC1
	s.UC1Report = &types.QualityReport{Score: 10}
	next, s = Route(s, cfg) // uc1 -> uc2
	require.Equal(t, types.NextUC2, next)

	s.CurrentUC = types.UC2
	s.UC2Result = &types.ConsensusResult{Tier: types.TierHigh}
	next, s = Route(s, cfg) // uc2 -> uc1
	require.Equal(t, types.NextUC1, next)

	s.CurrentUC = types.UC1
	s.UC1Report = &types.QualityReport{Score: 95}
	next, s = Route(s, cfg) // uc1 -> end
	require.Equal(t, types.NextEnd, next)

	assert.Equal(t, []string{"start → uc1", "uc1 → uc2", "uc2 → uc1", "uc1 → end"}, s.History)
	assert.Equal(t, "ok", s.TerminalReason)
	assert.Equal(t, 1, s.LoopCount)
}

// TestRoute_ScenarioE_AdversarialLoopTerminatesAtExactlyMaxLoops reproduces
// spec §8 Scenario E: UC1 always fails, UC2 always accepts but the healed
// selectors also always fail UC1's re-check. After exactly MAX_LOOPS
// UC1->UC2 cycles the run must end on loop_bound with |history| =
// 2*MAX_LOOPS+1 and exactly MAX_LOOPS uc2 invocations.
func TestRoute_ScenarioE_AdversarialLoopTerminatesAtExactlyMaxLoops(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLoops = 3
	cfg.MaxFailuresBeforeHeal = 1

	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.SelectorRecord = &types.SelectorRecord{Site: "example.test"}

	next, s := Route(s, cfg) // start -> uc1
	require.Equal(t, types.NextUC1, next)

	uc2Invocations := 0
	for {
		s.CurrentUC = types.UC1
		s.UC1Report = &types.QualityReport{Score: 10}
		next, s = Route(s, cfg)
		if next == types.NextEnd {
			break
		}
		require.Equal(t, types.NextUC2, next)
		uc2Invocations++

		s.CurrentUC = types.UC2
		s.UC2Result = &types.ConsensusResult{Tier: types.TierHigh}
		next, s = Route(s, cfg)
		if next == types.NextEnd {
			break
		}
		require.Equal(t, types.NextUC1, next)
	}

	assert.Equal(t, types.NextEnd, next)
	assert.Equal(t, "loop_bound", s.TerminalReason)
	assert.Equal(t, 3, uc2Invocations)
	assert.Len(t, s.History, 2*cfg.MaxLoops+1)
	assert.Equal(t, cfg.MaxLoops, s.LoopCount)
}

func TestRoute_DoesNotMutateInputState(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	s.CurrentUC = types.UC1
	s.UC1Report = &types.QualityReport{Score: 10}

	_, out := Route(s, testConfig())
	require.NotSame(t, s, out)
	assert.Equal(t, 0, s.LoopCount)
	assert.Equal(t, 0, s.FailureCount)
}

func TestRoute_HistoryAppendedEachCall(t *testing.T) {
	s := types.NewMasterState("https://example.test/a", "example.test", types.Hints{})
	_, out := Route(s, testConfig())
	assert.Len(t, out.History, 1)
}
