package resilience

import (
	"sync"
	"time"
)

// circuitState is the breaker's position in its closed/open/half-open cycle.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker stops calling a failing dependency for a cooldown period:
//   - closed -> open after threshold consecutive failures
//   - open -> half-open once the cooldown elapses; a single trial call runs
//   - half-open -> closed on trial success, back to open on trial failure
//
// All transitions happen under one mutex so concurrent callers never lose
// updates or let two trial calls through.
type Breaker struct {
	mu sync.Mutex

	state               circuitState
	consecutiveFailures int
	lastFailureAt       time.Time
	openedUntil         time.Time
	trialInFlight       bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock overrides the breaker's clock. For tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker constructs a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	b := &Breaker{
		state:     circuitClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed. When the breaker is open and the
// cooldown has elapsed, exactly one caller is admitted as the half-open trial;
// everyone else keeps getting rejected until that trial reports its outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if b.now().Before(b.openedUntil) {
			return false
		}
		b.state = circuitHalfOpen
		b.trialInFlight = true
		return true
	case circuitHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess reports a successful call. A half-open trial success closes
// the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == circuitHalfOpen {
		b.state = circuitClosed
		b.trialInFlight = false
	}
}

// RecordFailure reports a failed call. Enough consecutive failures open the
// circuit; a failed half-open trial re-opens it for another cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.consecutiveFailures++
	b.lastFailureAt = now

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openedUntil = now.Add(b.cooldown)
		b.trialInFlight = false
		return
	}
	if b.state == circuitClosed && b.consecutiveFailures >= b.threshold {
		b.state = circuitOpen
		b.openedUntil = now.Add(b.cooldown)
	}
}

// State returns the breaker state as a string for logging and metrics.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Registry hands out one breaker per logical dependency key, shared across
// all callers targeting that dependency for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	threshold int
	cooldown  time.Duration
	opts      []BreakerOption
}

// NewRegistry constructs a registry whose breakers share the given policy.
func NewRegistry(threshold int, cooldown time.Duration, opts ...BreakerOption) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		opts:      opts,
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewBreaker(r.threshold, r.cooldown, r.opts...)
	r.breakers[key] = b
	return b
}
