package limiter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiterConfig tunes outbound probe pacing.
type RateLimiterConfig struct {
	MinDelay   time.Duration // floor between consecutive probes
	MaxDelay   time.Duration // ceiling before jitter
	WindowSize int           // samples kept for rate/latency accounting
	Adaptive   bool          // scale delay with observed response latency
	Jitter     bool          // add uniform noise in [-JitterSpread, +JitterSpread]
}

const jitterSpread = 500 * time.Millisecond

// DefaultRateLimiterConfig matches the deployment defaults: 1-3s pacing,
// adaptive and jittered, 10-sample windows.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MinDelay:   time.Second,
		MaxDelay:   3 * time.Second,
		WindowSize: 10,
		Adaptive:   true,
		Jitter:     true,
	}
}

// RateLimiter paces outbound requests with an adaptive, jittered delay.
// One instance is shared across all concurrent searches so pacing is global
// for the process, not per-search.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu            sync.Mutex
	lastRequest   time.Time
	requestTimes  []time.Time
	responseTimes []time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	randf func() float64
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &RateLimiter{
		cfg:   cfg,
		sleep: sleepCtx,
		randf: rand.Float64,
	}
}

// Throttle blocks until it is safe to issue the next outbound request.
// The admission slot is reserved under the lock before sleeping, so
// concurrent callers stack their delays instead of sharing one stale
// lastRequest and waking together. Returns early with the context error if
// ctx is cancelled mid-sleep.
func (r *RateLimiter) Throttle(ctx context.Context) error {
	r.mu.Lock()
	required := r.computeDelay()
	now := time.Now()
	admitAt := now
	if !r.lastRequest.IsZero() {
		admitAt = r.lastRequest.Add(required)
		if admitAt.Before(now) {
			admitAt = now
		}
	}
	r.lastRequest = admitAt
	r.mu.Unlock()

	if wait := time.Until(admitAt); wait > 0 {
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.requestTimes = append(r.requestTimes, admitAt)
	if len(r.requestTimes) > r.cfg.WindowSize {
		r.requestTimes = r.requestTimes[1:]
	}
	r.mu.Unlock()
	return nil
}

// computeDelay applies the adaptive/random/jitter pipeline. Caller holds mu.
func (r *RateLimiter) computeDelay() time.Duration {
	base := r.cfg.MinDelay

	if r.cfg.Adaptive && len(r.responseTimes) > 0 {
		var total time.Duration
		for _, d := range r.responseTimes {
			total += d
		}
		avg := total / time.Duration(len(r.responseTimes))
		if avg > 2*time.Second {
			base = time.Duration(float64(base) * 1.5)
			if base > r.cfg.MaxDelay {
				base = r.cfg.MaxDelay
			}
		} else if avg < 500*time.Millisecond {
			base = time.Duration(float64(base) * 0.8)
			if base < r.cfg.MinDelay {
				base = r.cfg.MinDelay
			}
		}
	}

	spread := r.cfg.MaxDelay - r.cfg.MinDelay
	random := r.cfg.MinDelay + time.Duration(r.randf()*float64(spread))
	if random > base {
		base = random
	}

	if r.cfg.Jitter {
		base += time.Duration((r.randf()*2 - 1) * float64(jitterSpread))
	}

	if base < r.cfg.MinDelay {
		base = r.cfg.MinDelay
	}
	if base > r.cfg.MaxDelay {
		base = r.cfg.MaxDelay
	}
	return base
}

// RecordResponseTime feeds an observed probe latency into the adaptive window.
func (r *RateLimiter) RecordResponseTime(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responseTimes = append(r.responseTimes, d)
	if len(r.responseTimes) > r.cfg.WindowSize {
		r.responseTimes = r.responseTimes[1:]
	}
}

// RequestRate returns the observed request rate in requests per minute over
// the current window, or 0 with fewer than two samples.
func (r *RateLimiter) RequestRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requestTimes) < 2 {
		return 0
	}
	span := r.requestTimes[len(r.requestTimes)-1].Sub(r.requestTimes[0])
	if span <= 0 {
		return 0
	}
	return float64(len(r.requestTimes)) / span.Minutes()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
