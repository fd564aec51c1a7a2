package crawler

import (
	"context"
	"math/rand"
	"time"
)

// DelayRange is a closed interval a pacing delay is drawn from.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pacer blocks the crawl thread for a randomized duration. All crawl delays
// run through a Pacer so tests can replace it with a no-op.
type Pacer interface {
	// Wait suspends until the drawn delay elapses or ctx finishes, and
	// returns the time actually spent waiting.
	Wait(ctx context.Context, r DelayRange) time.Duration
}

type randomPacer struct {
	rng *rand.Rand
}

// NewPacer builds a Pacer drawing uniform delays from the injected random
// source.
func NewPacer(rng *rand.Rand) Pacer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &randomPacer{rng: rng}
}

func (p *randomPacer) Wait(ctx context.Context, r DelayRange) time.Duration {
	d := r.Min
	if r.Max > r.Min {
		d += time.Duration(p.rng.Int63n(int64(r.Max - r.Min)))
	}
	if d <= 0 {
		return 0
	}
	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return time.Since(start)
	case <-timer.C:
	}
	return d
}
