// Package consensus implements the Consensus Calculator (C7, spec §4.7):
// combining proposer confidence, validator confidence, and measured
// extraction quality into a scalar score with a tiered decision.
package consensus

import "github.com/lorekeeper/extractor/internal/core/types"

// Weights is the configurable (proposer, validator, extraction_quality)
// weight triple (spec §4.7); Config.Validate rejects a non-1.0-summing
// triple at startup (spec §9 Open Question 3).
type Weights struct {
	Proposer          float64
	Validator         float64
	ExtractionQuality float64
}

// Tiers holds the high/medium acceptance thresholds for one use case. UC2
// and UC3 have distinct defaults (spec §4.7).
type Tiers struct {
	High   float64
	Medium float64
}

// Calculate implements consensus(proposer_conf, validator_conf,
// extraction_quality) -> ConsensusResult (spec §4.7).
func Calculate(proposerConf, validatorConf, extractionQuality float64, w Weights, t Tiers, selectors *types.SelectorSet) types.ConsensusResult {
	score := w.Proposer*proposerConf + w.Validator*validatorConf + w.ExtractionQuality*extractionQuality

	tier := types.TierReject
	switch {
	case score >= t.High:
		tier = types.TierHigh
	case score >= t.Medium:
		tier = types.TierMedium
	}

	var sel *types.SelectorSet
	if tier != types.TierReject {
		sel = selectors
	}

	return types.ConsensusResult{
		Score: score,
		Tier:  tier,
		Selectors: sel,
		AgentContributions: map[string]float64{
			"proposer":           proposerConf,
			"validator":          validatorConf,
			"extraction_quality": extractionQuality,
		},
	}
}
