package locking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SQLiteLocker stores leases in the job_locks table of the fund database.
// Stale leases (expires_at in the past) are taken over atomically.
type SQLiteLocker struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewSQLiteLocker creates a locker backed by db.
func NewSQLiteLocker(db *sql.DB, log zerolog.Logger) *SQLiteLocker {
	return &SQLiteLocker{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "sqlite_locker").Logger(),
	}
}

// Acquire takes the named lease or returns ErrLockHeld.
func (l *SQLiteLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	owner := uuid.NewString()
	now := l.now()

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO job_locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE job_locks.expires_at <= ?
	`, name, owner, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	l.log.Debug().Str("lock", name).Str("owner", owner).Dur("ttl", ttl).Msg("Lock acquired")
	return &sqliteLease{db: l.db, name: name, owner: owner}, nil
}

type sqliteLease struct {
	db    *sql.DB
	name  string
	owner string
}

func (s *sqliteLease) Release(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_locks WHERE name = ? AND owner = ?`, s.name, s.owner)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", s.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", s.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", s.name, ErrLockLost)
	}
	return nil
}
