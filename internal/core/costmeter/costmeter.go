// Package costmeter implements the Cost Meter (C10, spec §4.9): per-call
// token/cost computation from a static price table keyed by
// (provider, model). An unknown (provider, model) pair costs 0, which is
// not a failure (spec §4.9).
package costmeter

import (
	"context"
	"time"

	"github.com/lorekeeper/extractor/internal/core/types"
)

// Price is a per-1000-token rate pair in USD.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// priceKey identifies one (provider, model) price table entry.
type priceKey struct {
	provider string
	model    string
}

// defaultPrices is a representative static table and the only one NewMeter
// uses; it cannot be substituted. Rates are illustrative list prices, not
// live-fetched (spec's "static price table").
var defaultPrices = map[priceKey]Price{
	{"claude", "claude-3-5-sonnet-20241022"}: {InputPer1K: 0.003, OutputPer1K: 0.015},
	{"claude", "claude-3-5-haiku-20241022"}:  {InputPer1K: 0.0008, OutputPer1K: 0.004},
	{"gemini", "gemini-2.0-flash"}:           {InputPer1K: 0.0001, OutputPer1K: 0.0004},
	{"gemini", "gemini-1.5-pro"}:             {InputPer1K: 0.00125, OutputPer1K: 0.005},
}

// Store is the append-only persistence collaborator (satisfied by
// internal/storage/sqlite.CostMeterStore).
type Store interface {
	Append(ctx context.Context, m *types.CostMetric) error
}

// Meter computes and records CostMetrics for every LLM invocation (spec
// invariant 3: "every LLM call produces exactly one CostMetric").
type Meter struct {
	store  Store
	prices map[priceKey]Price
}

// NewMeter builds a Meter against the default price table.
func NewMeter(store Store) *Meter {
	return &Meter{store: store, prices: defaultPrices}
}

// Compute returns (inputCost, outputCost, totalCost) for a call, 0 for an
// unrecognized (provider, model) pair.
func (m *Meter) Compute(provider, model string, inputTokens, outputTokens int) (float64, float64, float64) {
	price, ok := m.prices[priceKey{provider, model}]
	if !ok {
		return 0, 0, 0
	}
	inputCost := float64(inputTokens) / 1000 * price.InputPer1K
	outputCost := float64(outputTokens) / 1000 * price.OutputPer1K
	return inputCost, outputCost, inputCost + outputCost
}

// Record computes cost and appends exactly one CostMetric. The write is a
// single local SQLite insert, bounded well within the "MUST NOT block the
// main request path for longer than a bounded time" requirement (spec
// §4.9); no async buffering is needed at this write volume.
func (m *Meter) Record(ctx context.Context, site, url string, useCase types.UseCase, provider, model string, inputTokens, outputTokens int) (types.CostMetric, error) {
	inputCost, outputCost, total := m.Compute(provider, model, inputTokens, outputTokens)

	metric := types.CostMetric{
		Timestamp:    time.Now().UTC(),
		Provider:     provider,
		Model:        model,
		UseCase:      useCase,
		Site:         site,
		URL:          url,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    total,
	}

	if err := m.store.Append(ctx, &metric); err != nil {
		return metric, err
	}
	return metric, nil
}
