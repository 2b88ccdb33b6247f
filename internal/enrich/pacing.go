package enrich

import (
	"context"
	"math/rand/v2"
	"time"
)

// pacer owns the blocking pauses between items.
type pacer struct {
	interval time.Duration
	jitter   time.Duration
	every    int
	search   time.Duration
	recovery time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64

	sinceLast int
}

// afterItem returns the pause owed after an item that made network calls.
func (p *pacer) afterItem(searched bool) time.Duration {
	var d time.Duration
	p.sinceLast++
	every := max(p.every, 1)
	if p.sinceLast >= every {
		p.sinceLast = 0
		d = p.interval
		if p.jitter > 0 {
			d += time.Duration(p.rand() * float64(p.jitter))
		}
	}
	if searched {
		d += p.search
	}
	return d
}

// recoveryFor returns the pause after the n-th consecutive rate-limited item.
func (p *pacer) recoveryFor(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return p.recovery * time.Duration(n)
}

func (p *pacer) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultRand() float64 { return rand.Float64() }
