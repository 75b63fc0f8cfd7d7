// Package history persists and queries past synchronization runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/report"
)

// ErrNotFound is returned when no run matches the requested id.
var ErrNotFound = errors.New("run not found")

// Entry is one stored run, with the full report available on demand.
type Entry struct {
	ID           string        `json:"id"`
	Trigger      string        `json:"trigger"`
	DryRun       bool          `json:"dry_run"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Collections  int           `json:"collections"`
	ItemsAdded   int           `json:"items_added"`
	ItemsRemoved int           `json:"items_removed"`

	Report *report.RunReport `json:"report,omitempty"`
}

// Store reads and writes run history rows.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a run-history store over an open database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Save persists a finalized run report.
func (s *Store) Save(ctx context.Context, r *report.RunReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	collections, added, removed, _ := r.Totals()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, trigger, dry_run, started_at, ended_at, duration_ms,
			success, collections, items_added, items_removed, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Trigger, r.DryRun, r.StartedAt.UTC(), r.EndedAt.UTC(),
		r.Duration.Milliseconds(), r.Succeeded(), collections, added, removed,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug().Str("run", r.ID).Msg("run persisted")
	return nil
}

// List returns the most recent runs, newest first, without their full
// reports.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger, dry_run, started_at, ended_at, duration_ms,
			success, collections, items_added, items_removed
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one run including its full report.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger, dry_run, started_at, ended_at, duration_ms,
			success, collections, items_added, items_removed, report
		FROM runs WHERE id = ?`, id)

	var (
		e          Entry
		durationMS int64
		payload    string
	)
	err := row.Scan(&e.ID, &e.Trigger, &e.DryRun, &e.StartedAt, &e.EndedAt,
		&durationMS, &e.Success, &e.Collections, &e.ItemsAdded, &e.ItemsRemoved,
		&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	e.Duration = time.Duration(durationMS) * time.Millisecond
	var r report.RunReport
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	e.Report = &r
	return &e, nil
}

// Last returns the most recent run, or nil when no run has been stored.
func (s *Store) Last(ctx context.Context) (*Entry, error) {
	entries, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return s.Get(ctx, entries[0].ID)
}

// Prune deletes runs older than the retention window.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("old runs pruned")
	}
	return deleted, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		durationMS int64
	)
	err := rows.Scan(&e.ID, &e.Trigger, &e.DryRun, &e.StartedAt, &e.EndedAt,
		&durationMS, &e.Success, &e.Collections, &e.ItemsAdded, &e.ItemsRemoved)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to scan run: %w", err)
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return e, nil
}
