package accrual

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// RunRepository persists the accrual_runs audit trail. Per-position errors
// are stored as a msgpack-encoded list.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "accrual_runs").Logger(),
	}
}

// Insert records a finished cycle.
func (r *RunRepository) Insert(ctx context.Context, res *CycleResult) error {
	var blob []byte
	if len(res.Errors) > 0 {
		var err error
		blob, err = msgpack.Marshal(res.Errors)
		if err != nil {
			return fmt.Errorf("failed to encode run errors: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accrual_runs (id, trigger, manual, mode, started_at, finished_at,
			processed, updated, skipped, error_count, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.RunID, res.Trigger, res.Manual, string(res.Mode), res.StartedAt.Unix(), res.FinishedAt.Unix(),
		res.Processed, res.Updated, res.Skipped, res.ErrorCount(), blob)
	if err != nil {
		return fmt.Errorf("failed to insert accrual run %s: %w", res.RunID, err)
	}
	return nil
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]CycleResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger, manual, mode, started_at, finished_at, processed, updated, skipped, errors
		FROM accrual_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query accrual runs: %w", err)
	}
	defer rows.Close()

	var runs []CycleResult
	for rows.Next() {
		var (
			run        CycleResult
			mode       string
			startedAt  int64
			finishedAt int64
			blob       []byte
		)
		if err := rows.Scan(&run.RunID, &run.Trigger, &run.Manual, &mode, &startedAt, &finishedAt,
			&run.Processed, &run.Updated, &run.Skipped, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan accrual run: %w", err)
		}
		run.Mode = Mode(mode)
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		run.FinishedAt = time.Unix(finishedAt, 0).UTC()
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &run.Errors); err != nil {
				r.log.Warn().Err(err).Str("run_id", run.RunID).Msg("Failed to decode run errors")
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accrual runs: %w", err)
	}
	return runs, nil
}
