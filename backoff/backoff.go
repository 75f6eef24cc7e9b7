// Package backoff decides when a failed job runs again. A strategy maps
// the retry attempt (1 for the first retry) to a delay; DueDate turns that
// into the job's next due date.
package backoff

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// MinDelay keeps a retried job's due date strictly after the failure.
const MinDelay = time.Millisecond

// Strategy computes the wait before retry attempt n, n >= 1.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a function to Strategy.
type Func func(attempt int) time.Duration

func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// DueDate is now plus s's delay for attempt, at least MinDelay. Attempts
// below 1 count as 1 and a nil s waits MinDelay.
func DueDate(s Strategy, now time.Time, attempt int) time.Time {
	attempt = max(attempt, 1)
	d := MinDelay
	if s != nil {
		d = max(s.Delay(attempt), MinDelay)
	}
	return now.Add(d)
}

// Constant waits Interval every time.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(int) time.Duration { return c.Interval }

// Linear waits Initial*attempt, up to Max when Max is set.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

func (l *Linear) Delay(attempt int) time.Duration {
	return capped(l.Initial*time.Duration(attempt), l.Max)
}

// Exponential waits Initial*2^(attempt-1), up to Max when Max is set.
// With Jitter the wait is drawn uniformly from [0, that value].
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	d := e.Initial
	// Stop doubling once the cap is reached so large attempts cannot overflow.
	for i := 1; i < attempt && (e.Max <= 0 || d < e.Max) && d < time.Duration(1)<<60; i++ {
		d *= 2
	}
	d = capped(d, e.Max)
	if e.Jitter && d > 0 {
		return time.Duration(rand.Int64N(int64(d) + 1)) //nolint:gosec // not security sensitive
	}
	return d
}

func capped(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// Names accepted by Named.
const (
	NameLinear            = "linear"
	NameConstant          = "constant"
	NameExponential       = "exponential"
	NameExponentialJitter = "exponential-jitter"
)

// Default is the manager's retry policy: retryWait times the attempt,
// capped at 64 retry waits.
func Default(retryWait time.Duration) Strategy {
	return NewLinear(retryWait, 64*retryWait)
}

// Named builds the strategy called name around base, the configured retry
// wait. Growing strategies cap at 64*base. An empty name is linear.
func Named(name string, base time.Duration) (Strategy, error) {
	switch name {
	case "", NameLinear:
		return Default(base), nil
	case NameConstant:
		return NewConstant(base), nil
	case NameExponential:
		return NewExponential(base, 64*base), nil
	case NameExponentialJitter:
		return NewExponentialWithJitter(base, 64*base), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", name)
	}
}
