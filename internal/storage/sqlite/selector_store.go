package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/types"
)

// SelectorStore implements the Selector Store (C8, spec §4.8): a site-keyed
// persistent store of SelectorSets with success/failure counters, updated
// transactionally so a concurrent reader always sees either the full new set
// or the full old one.
type SelectorStore struct {
	db *DB
}

// NewSelectorStore wraps an open DB as a SelectorStore.
func NewSelectorStore(db *DB) *SelectorStore {
	return &SelectorStore{db: db}
}

// Get returns the SelectorRecord for site, or nil if none exists.
func (s *SelectorStore) Get(ctx context.Context, site string) (*types.SelectorRecord, error) {
	return scanSelectorRecord(s.db.db.QueryRowContext(ctx, `
		SELECT site, title_selector, body_selector, date_selector, source,
		       success_count, failure_count, created_at, updated_at
		FROM selectors WHERE site = ?`, site))
}

// PutNew inserts a brand-new SelectorRecord for site. Fails with
// common.ErrRecordExists if a record already exists (StoreContention, spec
// §7): the caller re-reads the store and routes as if the record had always
// existed.
func (s *SelectorStore) PutNew(ctx context.Context, site string, set types.SelectorSet, source types.SelectorSource) (*types.SelectorRecord, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO selectors (site, title_selector, body_selector, date_selector, source,
		                        success_count, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		site, set.Title.String(), set.Body.String(), set.Date.String(), string(source),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrRecordExists
		}
		return nil, fmt.Errorf("failed to insert selector record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &types.SelectorRecord{
		Site: site, Set: set, Source: source,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Replace atomically overwrites the SelectorSet for an existing site,
// advancing updated_at. Fails with common.ErrRecordNotFound if no record
// exists yet.
func (s *SelectorStore) Replace(ctx context.Context, site string, set types.SelectorSet, source types.SelectorSource) (*types.SelectorRecord, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE selectors
		SET title_selector = ?, body_selector = ?, date_selector = ?, source = ?, updated_at = ?
		WHERE site = ?`,
		set.Title.String(), set.Body.String(), set.Date.String(), string(source), now.Format(time.RFC3339Nano), site)
	if err != nil {
		return nil, fmt.Errorf("failed to replace selector record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return nil, common.ErrRecordNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, site)
}

// MarkSuccess increments the success counter for site.
func (s *SelectorStore) MarkSuccess(ctx context.Context, site string) error {
	_, err := s.db.db.ExecContext(ctx, `UPDATE selectors SET success_count = success_count + 1 WHERE site = ?`, site)
	if err != nil {
		return fmt.Errorf("failed to mark success: %w", err)
	}
	return nil
}

// MarkFailure increments the failure counter for site. Per spec §9 Open
// Question 2, callers invoke this only after UC2 exhausts its retries, not
// on every UC1 failure.
func (s *SelectorStore) MarkFailure(ctx context.Context, site string) error {
	_, err := s.db.db.ExecContext(ctx, `UPDATE selectors SET failure_count = failure_count + 1 WHERE site = ?`, site)
	if err != nil {
		return fmt.Errorf("failed to mark failure: %w", err)
	}
	return nil
}

// AllBySuccessDesc returns every record ordered by success_count descending,
// used by the Few-Shot Retriever's fallback ("globally most successful
// records", spec §4.10) when no site-similar candidates exist.
func (s *SelectorStore) AllBySuccessDesc(ctx context.Context, limit int) ([]*types.SelectorRecord, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT site, title_selector, body_selector, date_selector, source,
		       success_count, failure_count, created_at, updated_at
		FROM selectors ORDER BY success_count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query selector records: %w", err)
	}
	defer rows.Close()

	var out []*types.SelectorRecord
	for rows.Next() {
		rec, err := scanSelectorRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSelectorRecord(row *sql.Row) (*types.SelectorRecord, error) {
	rec, err := scanSelectorRecordRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan selector record: %w", err)
	}
	return rec, nil
}

func scanSelectorRecordRow(s rowScanner) (*types.SelectorRecord, error) {
	var site, titleSel, bodySel, dateSel, source string
	var successCount, failureCount int
	var createdAt, updatedAt string

	if err := s.Scan(&site, &titleSel, &bodySel, &dateSel, &source, &successCount, &failureCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	updated, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return &types.SelectorRecord{
		Site: site,
		Set: types.SelectorSet{
			Title:  types.ParseSelector(titleSel),
			Body:   types.ParseSelector(bodySel),
			Date:   types.ParseSelector(dateSel),
			Source: types.SelectorSource(source),
		},
		Source:       types.SelectorSource(source),
		SuccessCount: successCount,
		FailureCount: failureCount,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func scanSelectorRecordRows(rows *sql.Rows) (*types.SelectorRecord, error) {
	return scanSelectorRecordRow(rows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
