// Package supervisor implements the Supervisor/Router (C12, spec §4.11): a
// pure state-transition function over MasterState selecting the next
// subsystem. No I/O, no LLM calls; every branch has a defined outcome
// ("route is defined as a total function on MasterState").
package supervisor

import (
	"fmt"

	"github.com/lorekeeper/extractor/internal/core/types"
)

// Config holds the §6.4 tunables the Supervisor needs.
type Config struct {
	QualityThreshold      int
	MaxFailuresBeforeHeal int
	UC2MaxRetries         int
	UC3MaxRetries         int
	MaxLoops              int
}

// Route implements route(state) -> (next, state') (spec §4.11). It never
// mutates its argument; state' is a clone with the transition applied.
//
// LoopCount counts completed use-case pairs (one UC2/UC3 attempt plus the
// UC1 re-verification it earns on acceptance), not raw transitions: it is
// incremented in routeAfterUC2/routeAfterUC3 exactly when an accepted heal
// or discovery is about to hand control back to UC1 (see those functions).
// A raw per-transition counter capped at MaxLoops cannot reach the
// 2*MAX_LOOPS+1/+2 transition counts spec §8 property 1 and scenario E
// require, since a single heal cycle alone is already four transitions
// (uc1->uc2, uc2->uc1, plus the bracketing start/end hops).
func Route(state *types.MasterState, cfg Config) (types.RouteNext, *types.MasterState) {
	s := state.Clone()

	from := historyLabel(s.CurrentUC)

	var next types.RouteNext
	switch s.CurrentUC {
	case types.UCNone:
		next = routeInitial(s)
	case types.UC1:
		next = routeAfterUC1(s, cfg)
	case types.UC2:
		next = routeAfterUC2(s, cfg)
	case types.UC3:
		next = routeAfterUC3(s, cfg)
	default:
		next = types.NextEnd
	}

	if next == types.NextEnd {
		s.Done = true
	}

	s.History = append(s.History, fmt.Sprintf("%s → %s", from, historyLabelForNext(next)))
	return next, s
}

func routeInitial(s *types.MasterState) types.RouteNext {
	if s.SelectorRecord == nil {
		return types.NextUC3
	}
	return types.NextUC1
}

func routeAfterUC1(s *types.MasterState, cfg Config) types.RouteNext {
	wasPostDiscovery := s.LastUC3WasAccept
	s.LastUC3WasAccept = false

	if s.UC1Report != nil && s.UC1Report.Score >= cfg.QualityThreshold {
		s.TerminalReason = "ok"
		return types.NextEnd
	}

	if wasPostDiscovery {
		s.TerminalReason = "post_discovery_quality_failed"
		return types.NextEnd
	}

	// Checked, then incremented: with the default MAX_FAILURES_BEFORE_HEAL=1
	// this escalates on the very first UC1 failure (spec §6.4: "1 means UC1
	// failure immediately escalates to UC2"), since FailureCount is still 0
	// at the time of that first failure.
	if s.FailureCount < cfg.MaxFailuresBeforeHeal {
		s.FailureCount++
		return types.NextUC2
	}

	s.TerminalReason = "quality_exhausted"
	return types.NextEnd
}

func routeAfterUC2(s *types.MasterState, cfg Config) types.RouteNext {
	if s.UC2Result != nil && (s.UC2Result.Tier == types.TierHigh || s.UC2Result.Tier == types.TierMedium) {
		s.FailureCount = 0
		s.RetryCounts[types.UseCaseUC2] = 0
		s.LastUC3WasAccept = false

		s.LoopCount++
		if s.LoopCount >= cfg.MaxLoops {
			s.TerminalReason = "loop_bound"
			return types.NextEnd
		}
		return types.NextUC1
	}

	if s.RetryCounts[types.UseCaseUC2] < cfg.UC2MaxRetries {
		s.RetryCounts[types.UseCaseUC2]++
		return types.NextUC2
	}

	// Policy decision (spec §9 Open Question 1): end rather than fall back
	// to UC3 rediscovery, since UC3 over an existing record is destructive.
	s.TerminalReason = "uc2_exhausted"
	return types.NextEnd
}

func routeAfterUC3(s *types.MasterState, cfg Config) types.RouteNext {
	accepted := s.UC3Result != nil && (s.UC3Result.Tier == types.TierHigh || s.UC3Result.Tier == types.TierMedium)

	if accepted {
		s.RetryCounts[types.UseCaseUC3] = 0
		s.LastUC3WasAccept = true

		s.LoopCount++
		if s.LoopCount >= cfg.MaxLoops {
			s.TerminalReason = "loop_bound"
			return types.NextEnd
		}
		return types.NextUC1
	}

	if s.RetryCounts[types.UseCaseUC3] < cfg.UC3MaxRetries {
		s.RetryCounts[types.UseCaseUC3]++
		return types.NextUC3
	}

	s.TerminalReason = "discovery_failed"
	return types.NextEnd
}

func historyLabel(uc types.CurrentUC) string {
	if uc == types.UCNone {
		return "start"
	}
	return string(uc)
}

func historyLabelForNext(next types.RouteNext) string {
	return string(next)
}
