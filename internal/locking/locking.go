// Package locking provides named leases used to keep batch jobs single-flight
// across processes.
package locking

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when another owner holds an unexpired lease.
var ErrLockHeld = errors.New("lock already held")

// ErrLockLost is returned by Release when the lease expired and was taken over.
var ErrLockLost = errors.New("lock not owned (expired or taken over)")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases by name. A lease expires after ttl even if never
// released, so a crashed holder cannot block the job forever.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}
