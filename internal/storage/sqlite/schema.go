package sqlite

import "fmt"

// schemaSQL creates the three tables named in spec §6.2, following the
// teacher's schema.go style: additive `CREATE TABLE IF NOT EXISTS` plus an
// explicit index block, no migration framework.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS selectors (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	site            TEXT NOT NULL UNIQUE,
	title_selector  TEXT NOT NULL,
	body_selector   TEXT NOT NULL,
	date_selector   TEXT NOT NULL,
	source          TEXT NOT NULL,
	success_count   INTEGER NOT NULL DEFAULT 0,
	failure_count   INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_selectors_site ON selectors(site);

CREATE TABLE IF NOT EXISTS decision_logs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	url               TEXT NOT NULL,
	site              TEXT NOT NULL,
	use_case          TEXT NOT NULL,
	proposer_output   TEXT,
	validator_output  TEXT,
	consensus_score   REAL NOT NULL,
	consensus_tier    TEXT NOT NULL,
	final_action      TEXT NOT NULL,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	ts                TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_logs_site ON decision_logs(site);
CREATE INDEX IF NOT EXISTS idx_decision_logs_ts ON decision_logs(ts);

CREATE TABLE IF NOT EXISTS cost_metrics (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	ts            TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	use_case      TEXT NOT NULL,
	site          TEXT NOT NULL,
	url           TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	input_cost    REAL NOT NULL,
	output_cost   REAL NOT NULL,
	total_cost    REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_metrics_ts ON cost_metrics(ts);
CREATE INDEX IF NOT EXISTS idx_cost_metrics_provider ON cost_metrics(provider);
CREATE INDEX IF NOT EXISTS idx_cost_metrics_use_case ON cost_metrics(use_case);
`

func (d *DB) initSchema() error {
	if _, err := d.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
