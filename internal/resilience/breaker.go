// Package resilience keeps the one-shot speech path usable when a synthesis
// backend misbehaves. A [Breaker] guards each backend with the usual three
// states (closed, open, half-open), and [TTSFallback] chains backends so a
// tripped primary is bypassed instead of surfacing raw errors to the child.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Call] while the breaker is open and
// its cool-off has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed admits every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the cool-off
	// elapses.
	BreakerOpen

	// BreakerHalfOpen admits a small probe budget after the cool-off; the
	// probes decide whether the breaker closes again or re-trips.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	defaultFailureThreshold = 3
	defaultCoolOff          = 20 * time.Second
	defaultProbeBudget      = 2
)

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithFailureThreshold sets how many consecutive failures trip the breaker.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCoolOff sets how long a tripped breaker rejects calls before probing.
func WithCoolOff(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.coolOff = d
		}
	}
}

// WithProbeBudget sets how many probe calls the half-open state admits.
func WithProbeBudget(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.probeMax = n
		}
	}
}

// WithLogger routes breaker state-change logs to l.
func WithLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.log = l
		}
	}
}

// Breaker trips after a run of consecutive failures and recovers through a
// limited probe phase. Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	coolOff   time.Duration
	probeMax  int
	log       *slog.Logger

	mu        sync.Mutex
	state     BreakerState
	streak    int // consecutive failures while closed
	trippedAt time.Time
	probes    int // calls admitted this half-open phase
	probeGood int // probe calls that succeeded
}

// NewBreaker creates a closed Breaker. name labels it in logs.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: defaultFailureThreshold,
		coolOff:   defaultCoolOff,
		probeMax:  defaultProbeBudget,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Call runs fn if the breaker admits it. While open it returns
// [ErrBreakerOpen] without touching the backend; while half-open it admits
// calls only up to the probe budget.
func (b *Breaker) Call(fn func() error) error {
	probing, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.settle(probing, err)
	return err
}

// admit decides whether a call may proceed, transitioning open → half-open
// when the cool-off has elapsed. It reports whether the admitted call counts
// against the probe budget.
func (b *Breaker) admit() (probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.trippedAt) < b.coolOff {
			return false, ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeGood = 0
		b.log.Info("breaker probing backend", "backend", b.name)
		fallthrough

	case BreakerHalfOpen:
		if b.probes >= b.probeMax {
			return false, ErrBreakerOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// settle records the call's outcome.
func (b *Breaker) settle(probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if !probing {
			b.streak = 0
			return
		}
		b.probeGood++
		if b.probeGood >= b.probeMax {
			b.state = BreakerClosed
			b.streak = 0
			b.log.Info("breaker closed, backend recovered", "backend", b.name)
		}
		return
	}

	b.trippedAt = time.Now()
	if probing {
		// One bad probe re-trips immediately.
		b.state = BreakerOpen
		b.streak = b.threshold
		b.log.Warn("breaker re-tripped during probe", "backend", b.name)
		return
	}
	b.streak++
	if b.streak >= b.threshold {
		b.state = BreakerOpen
		b.log.Warn("breaker tripped", "backend", b.name, "failures", b.streak)
	}
}

// State reports the breaker's mode. An open breaker whose cool-off has
// elapsed reports half-open; the transition itself happens on the next Call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.trippedAt) >= b.coolOff {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.streak = 0
	b.probes = 0
	b.probeGood = 0
	b.log.Info("breaker reset", "backend", b.name)
}
