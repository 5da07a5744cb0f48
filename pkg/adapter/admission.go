package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Admission bounds the number of concurrently served sessions. The accept
// loop acquires a Permit before accepting, so excess clients wait in the
// listen backlog instead of being accepted and dropped.
type Admission struct {
	sem    *semaphore.Weighted
	limit  int
	active atomic.Int32
}

// NewAdmission creates a controller with limit permits. limit must be >= 1.
func NewAdmission(limit int) (*Admission, error) {
	if limit < 1 {
		return nil, fmt.Errorf("max connections must be at least 1, got %d", limit)
	}
	return &Admission{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}, nil
}

// Acquire blocks until a permit is free or ctx is done.
func (a *Admission) Acquire(ctx context.Context) (*Permit, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	a.active.Add(1)
	return &Permit{owner: a}, nil
}

// TryAcquire returns a permit without blocking, or nil when none is free.
func (a *Admission) TryAcquire() *Permit {
	if !a.sem.TryAcquire(1) {
		return nil
	}
	a.active.Add(1)
	return &Permit{owner: a}
}

// Active returns the number of permits currently held.
func (a *Admission) Active() int {
	return int(a.active.Load())
}

// Limit returns the configured number of permits.
func (a *Admission) Limit() int {
	return a.limit
}

// Permit is one admission slot. Release is idempotent, so it can be both
// deferred and called early on error paths.
type Permit struct {
	owner *Admission
	once  sync.Once
}

// Release returns the permit to its Admission.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.owner.active.Add(-1)
		p.owner.sem.Release(1)
	})
}
