package shipper

import (
	"math/rand"
	"time"
)

const (
	backoffInitial    = 500 * time.Millisecond
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
	backoffJitter     = 0.25
)

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current delay with ±25% jitter and doubles the base,
// capped at backoffMax.
func (b *backoff) next() time.Duration {
	d := b.current
	d += time.Duration(float64(b.current) * backoffJitter * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
