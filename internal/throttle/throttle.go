// Package throttle grows and shrinks the poll period the way the core
// poll loop is required to: double it on every consecutive failure,
// reset it to its configured base the moment a poll succeeds.
package throttle

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollPeriod tracks the current inter-poll delay. It is not safe for
// concurrent use; the poll loop that owns it runs one cycle at a time.
type PollPeriod struct {
	base    time.Duration
	current time.Duration
	bo      *backoff.ExponentialBackOff
}

// New returns a PollPeriod starting at base, doubling on each
// consecutive Failure up to max, and dropping straight back to base
// on the next Success.
func New(base, max time.Duration) *PollPeriod {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = max
	bo.MaxElapsedTime = 0 // never stop growing on its own
	p := &PollPeriod{base: base, current: base, bo: bo}
	p.arm()
	return p
}

// arm resets the backoff to the base interval and advances it once so
// that the next Failure() call returns base*Multiplier rather than
// base itself — NextBackOff's first call always returns the interval
// as it stood before that call, and the period here is already
// sitting at base before any failure has happened.
func (p *PollPeriod) arm() {
	p.bo.Reset()
	p.bo.NextBackOff()
}

// Current returns the delay to use before the next poll, without
// advancing the sequence.
func (p *PollPeriod) Current() time.Duration {
	return p.current
}

// Failure doubles the period (capped at the configured max) and
// returns the new value, the delay before the next poll attempt.
func (p *PollPeriod) Failure() time.Duration {
	next := p.bo.NextBackOff()
	if next == backoff.Stop {
		next = p.bo.MaxInterval
	}
	p.current = next
	return p.current
}

// Success resets the period to its configured base and returns it.
func (p *PollPeriod) Success() time.Duration {
	p.arm()
	p.current = p.base
	return p.current
}
