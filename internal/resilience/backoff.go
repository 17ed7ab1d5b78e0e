package resilience

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/ourcaldo/indexnow-mono-sub007/pkg/sentinel"
)

// Backoff computes retry delays that grow exponentially up to a ceiling.
// Delay for attempt n is min(MaxDelay, BaseDelay * 2^(n-1)), optionally
// randomized with jitter in [0, delay) to avoid retry storms.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultBackoff returns the documented defaults: 3 attempts, 1s base delay,
// exponential up to 8s, with jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Jitter:      true,
	}
}

// Delay returns the pre-jitter delay before the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

// Next returns the delay to sleep before the given attempt, jittered when
// configured.
func (b Backoff) Next(attempt int) time.Duration {
	delay := b.Delay(attempt)
	if b.Jitter && delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay) + 1))
	}
	return delay
}

// Classifier reports whether an error is transient and worth retrying.
// Validation and conflict errors must return false; only network/timeout
// class failures should be retried.
type Classifier func(err error) bool

// DefaultClassifier treats timeouts, cancelled-free network errors and
// sentinel.ErrUnavailable as transient. Conflicts and invalid state are
// terminal: retrying a unique-constraint violation cannot succeed.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrNotFound) {
		return false
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
