package bridge

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff is an exponential retry delay: it starts at a floor, doubles on
// each consecutive failure up to a ceiling, and returns to the floor on Reset.
//
// Thread Safety: not safe for concurrent use. Each loop owns its own instance.
type Backoff struct {
	b *backoff.ExponentialBackOff
}

// NewBackoff returns a Backoff between floor and ceiling.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if ceiling < floor {
		ceiling = floor
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = floor
	b.MaxInterval = ceiling
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return &Backoff{b: b}
}

// Next returns the delay for the current failure and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.b.NextBackOff()
	if d == backoff.Stop {
		return b.b.MaxInterval
	}
	return d
}

// Reset returns the sequence to the floor.
func (b *Backoff) Reset() {
	b.b.Reset()
}
