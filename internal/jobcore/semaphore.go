package jobcore

import (
	"context"
	"sync"
)

// Semaphore is the process-wide admission gate bounding how many jobs may
// run concurrently. Acquiring it yields a move-only Permit whose Release
// is the only way a slot returns to the pool.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a Semaphore with the given permit capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{ch: make(chan struct{}, capacity)}
}

// Permit is one unit of admission. Release is idempotent and safe to
// defer unconditionally, including from a recovered panic.
type Permit struct {
	sem  *Semaphore
	once sync.Once
}

// Release returns the permit's slot to the semaphore. Safe to call more
// than once; only the first call has effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		<-p.sem.ch
	})
}

// TryAcquire attempts a non-blocking acquire, used by RunQueue, which
// stops admitting further jobs on the first failed acquire.
func (s *Semaphore) TryAcquire() (*Permit, bool) {
	select {
	case s.ch <- struct{}{}:
		return &Permit{sem: s}, true
	default:
		return nil, false
	}
}

// Acquire blocks until a permit is available or ctx is done, used by the
// scheduled dispatcher to drain due jobs without dropping them.
func (s *Semaphore) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case s.ch <- struct{}{}:
		return &Permit{sem: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InUse returns the number of permits currently held, for metrics.
func (s *Semaphore) InUse() int {
	return len(s.ch)
}

// Capacity returns the semaphore's total permit capacity.
func (s *Semaphore) Capacity() int {
	return cap(s.ch)
}
