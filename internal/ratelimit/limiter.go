package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrExceedsBurst = errors.New("rate limit reservation exceeds burst")

// Keyed spaces permits for each key at least 1/perSecond apart. Keys are
// independent, so unrelated campaigns never wait on each other.
type Keyed struct {
	limit rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// Now and Sleep are swappable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewKeyed returns a limiter allowing perSecond permits per key.
// perSecond <= 0 disables limiting.
func NewKeyed(perSecond float64) *Keyed {
	l := rate.Inf
	if perSecond > 0 {
		l = rate.Limit(perSecond)
	}
	return &Keyed{
		limit:    l,
		limiters: make(map[string]*rate.Limiter),
		Now:      time.Now,
		Sleep:    sleepCtx,
	}
}

// Interval is the minimum spacing between two permits for one key.
func (k *Keyed) Interval() time.Duration {
	if k.limit == rate.Inf || k.limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(k.limit))
}

// Acquire blocks until the caller may send for key.
func (k *Keyed) Acquire(ctx context.Context, key string) error {
	lim := k.limiter(key)

	now := k.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return ErrExceedsBurst
	}
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	if err := k.Sleep(ctx, d); err != nil {
		r.CancelAt(k.Now())
		return err
	}
	return nil
}

// Forget drops the state for key once a campaign run is finished.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.limiters, key)
	k.mu.Unlock()
}

func (k *Keyed) limiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	lim, ok := k.limiters[key]
	if !ok {
		lim = rate.NewLimiter(k.limit, 1)
		k.limiters[key] = lim
	}
	return lim
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
