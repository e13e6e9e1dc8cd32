// Package limiter implements the search client's fairness device: at most N
// acquisitions within any rolling one-second window.
package limiter

import (
	"context"
	"sync"
	"time"
)

// RPS is a sliding one-second window limiter. Acquire blocks until admitting
// the caller keeps the window at or under the configured rate.
type RPS struct {
	mu     sync.Mutex
	window []time.Time
	rps    int
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// NewRPS returns a limiter admitting at most rps acquisitions per rolling
// second. Rates below 1 are clamped to 1.
func NewRPS(rps int) *RPS {
	if rps < 1 {
		rps = 1
	}
	return &RPS{
		rps:   rps,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Acquire records one admission, waiting first if the window is full. The
// mutex is held across the wait so admissions stay strictly ordered.
func (l *RPS) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.window) >= l.rps {
		delay := time.Second - now.Sub(l.window[0])
		if delay > 0 {
			if err := l.sleep(ctx, delay); err != nil {
				return err
			}
		}
		l.evict(l.now())
	}
	l.window = append(l.window, l.now())
	return nil
}

func (l *RPS) evict(now time.Time) {
	i := 0
	for i < len(l.window) && now.Sub(l.window[i]) >= time.Second {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
