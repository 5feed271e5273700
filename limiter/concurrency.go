package limiter

import (
	"context"
	"sync"
)

// Status is an observability snapshot of a ConcurrencyLimiter.
type Status struct {
	Name          string `json:"name"`
	Running       int    `json:"running"`
	Queued        int    `json:"queued"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// ConcurrencyLimiter bounds how many functions run at once under a named
// budget. Waiters are served strictly FIFO, and a slot is always released
// even when fn panics.
type ConcurrencyLimiter struct {
	name string
	max  int

	mu      sync.Mutex
	running int
	waiters []chan struct{}
}

func NewConcurrencyLimiter(name string, maxConcurrent int) *ConcurrencyLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ConcurrencyLimiter{name: name, max: maxConcurrent}
}

// Execute runs fn once a slot is free, blocking FIFO behind earlier callers.
// ctx cancellation while queued abandons the wait and returns ctx.Err().
func (l *ConcurrencyLimiter) Execute(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return fn()
}

func (l *ConcurrencyLimiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.running < l.max && len(l.waiters) == 0 {
		l.running++
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Slot was granted concurrently with cancellation; give it back.
		l.release()
		return ctx.Err()
	}
}

func (l *ConcurrencyLimiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return // slot handed over, running count unchanged
	}
	l.running--
}

// GetStatus reports the current running/queued counts.
func (l *ConcurrencyLimiter) GetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Name:          l.name,
		Running:       l.running,
		Queued:        len(l.waiters),
		MaxConcurrent: l.max,
	}
}
