// Package backoff provides retry delay strategies for failed jobs.
// All strategies are stateless and safe for concurrent use.
//
// The default is None: a failed job goes straight back to the head of the
// pending list and is picked up on the next poll.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Strategy names accepted by FromConfig.
const (
	KindNone        = "none"
	KindConstant    = "constant"
	KindLinear      = "linear"
	KindExponential = "exponential"
	KindJitter      = "jitter"
)

// ──────────────────────────────────────────────────
// None
// ──────────────────────────────────────────────────

// None retries immediately.
type None struct{}

// Delay always returns zero.
func (None) Delay(int) time.Duration { return 0 }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	n := time.Duration(max(attempt, 1))
	d := maxDuration
	if l.Initial <= maxDuration/n {
		d = l.Initial * n
	}
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return exponentialBase(e.Initial, e.Max, attempt)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)).
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := exponentialBase(e.Initial, e.Max, attempt)
	if base <= 0 {
		return 0
	}
	return rand.N(base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// maxDuration is the longest representable delay.
const maxDuration = time.Duration(math.MaxInt64)

// exponentialBase caps the delay at Max, or at maxDuration when Max is
// unset. The comparison happens in float space and the cap is returned as an
// integer, since float64(math.MaxInt64) rounds up to 2^63 and would wrap.
func exponentialBase(initial, maxDelay time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		return 0
	}
	limit := maxDuration
	if maxDelay > 0 {
		limit = maxDelay
	}
	base := float64(initial) * math.Pow(2, float64(max(attempt, 1)-1))
	if base >= float64(limit) {
		return limit
	}
	return time.Duration(base)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns None.
func DefaultStrategy() Strategy {
	return None{}
}

// FromConfig builds a strategy from its name and bounds, as read from
// configuration. An empty kind selects None.
func FromConfig(kind string, initial, maxDelay time.Duration) (Strategy, error) {
	switch kind {
	case KindNone, "":
		return None{}, nil
	case KindConstant:
		return NewConstant(initial), nil
	case KindLinear:
		return NewLinear(initial, maxDelay), nil
	case KindExponential:
		return NewExponential(initial, maxDelay), nil
	case KindJitter:
		return NewExponentialWithJitter(initial, maxDelay), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", kind)
	}
}
