package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/lorekeeper/extractor/internal/core/types"
)

// CostMeterStore is the append-only Cost Meter (C10) persistence layer,
// mirroring DecisionLogStore's insert-only shape.
type CostMeterStore struct {
	db *DB
}

// NewCostMeterStore wraps an open DB as a CostMeterStore.
func NewCostMeterStore(db *DB) *CostMeterStore {
	return &CostMeterStore{db: db}
}

// Append writes one CostMetric.
func (s *CostMeterStore) Append(ctx context.Context, m *types.CostMetric) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO cost_metrics (ts, provider, model, use_case, site, url,
		                          input_tokens, output_tokens, input_cost, output_cost, total_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp.Format(time.RFC3339Nano), m.Provider, m.Model, string(m.UseCase), m.Site, m.URL,
		m.InputTokens, m.OutputTokens, m.InputCost, m.OutputCost, m.TotalCost)
	if err != nil {
		return fmt.Errorf("failed to insert cost metric: %w", err)
	}
	return nil
}

// TotalForRequest sums total_cost for a (site, url) pair, used by the
// Orchestrator to populate OrchestrationResult.CostUSD (spec §6.1).
func (s *CostMeterStore) TotalForRequest(ctx context.Context, site, url string) (float64, error) {
	var total float64
	row := s.db.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_cost), 0) FROM cost_metrics WHERE site = ? AND url = ?`, site, url)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum cost metrics: %w", err)
	}
	return total, nil
}

// SummaryByProvider aggregates total cost grouped by provider, backing the
// GET /cost reporting endpoint (SPEC_FULL.md Supplemented Features).
func (s *CostMeterStore) SummaryByProvider(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT provider, SUM(total_cost) FROM cost_metrics GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize cost metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var provider string
		var total float64
		if err := rows.Scan(&provider, &total); err != nil {
			return nil, fmt.Errorf("failed to scan cost summary row: %w", err)
		}
		out[provider] = total
	}
	return out, rows.Err()
}
