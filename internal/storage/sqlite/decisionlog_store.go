package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeeper/extractor/internal/core/types"
)

// DecisionLogStore is the append-only Decision Logger (C9), adapted from
// the teacher's SQLiteAuditLogger (internal/services/llm/audit.go): one
// INSERT per call, no updates, no deletes.
type DecisionLogStore struct {
	db *DB
}

// NewDecisionLogStore wraps an open DB as a DecisionLogStore.
func NewDecisionLogStore(db *DB) *DecisionLogStore {
	return &DecisionLogStore{db: db}
}

// Append writes one DecisionLogEntry. The entry's ID is assigned if empty.
func (s *DecisionLogStore) Append(ctx context.Context, entry *types.DecisionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var proposerJSON, validatorJSON []byte
	var err error
	if entry.ProposerOutput != nil {
		if proposerJSON, err = json.Marshal(entry.ProposerOutput); err != nil {
			return fmt.Errorf("failed to marshal proposer output: %w", err)
		}
	}
	if entry.ValidatorOutput != nil {
		if validatorJSON, err = json.Marshal(entry.ValidatorOutput); err != nil {
			return fmt.Errorf("failed to marshal validator output: %w", err)
		}
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO decision_logs (url, site, use_case, proposer_output, validator_output,
		                            consensus_score, consensus_tier, final_action, retry_count, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.URL, entry.Site, string(entry.UseCase), string(proposerJSON), string(validatorJSON),
		entry.ConsensusScore, string(entry.ConsensusTier), string(entry.FinalAction), entry.RetryCount,
		entry.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert decision log entry: %w", err)
	}
	return nil
}

// BySite returns decision log entries for a site, most recent first.
func (s *DecisionLogStore) BySite(ctx context.Context, site string, limit int) ([]*types.DecisionLogEntry, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT url, site, use_case, proposer_output, validator_output, consensus_score,
		       consensus_tier, final_action, retry_count, ts
		FROM decision_logs WHERE site = ? ORDER BY ts DESC LIMIT ?`, site, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision logs: %w", err)
	}
	defer rows.Close()

	var out []*types.DecisionLogEntry
	for rows.Next() {
		var e types.DecisionLogEntry
		var useCase, proposerJSON, validatorJSON, tier, action, ts string
		if err := rows.Scan(&e.URL, &e.Site, &useCase, &proposerJSON, &validatorJSON,
			&e.ConsensusScore, &tier, &action, &e.RetryCount, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan decision log row: %w", err)
		}
		e.UseCase = types.UseCase(useCase)
		e.ConsensusTier = types.ConsensusTier(tier)
		e.FinalAction = types.FinalAction(action)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if proposerJSON != "" {
			var p types.ProposerOutput
			if err := json.Unmarshal([]byte(proposerJSON), &p); err == nil {
				e.ProposerOutput = &p
			}
		}
		if validatorJSON != "" {
			var v types.ValidatorOutput
			if err := json.Unmarshal([]byte(validatorJSON), &v); err == nil {
				e.ValidatorOutput = &v
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
