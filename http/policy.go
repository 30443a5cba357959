package http

import (
	"math"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the delay before the first retry
	DefaultInitialBackoff = 300 * time.Millisecond

	// DefaultMultiplier grows the delay between consecutive retries
	DefaultMultiplier = 2.0
)

// Policy configures one call chain. A copy is taken per Fetch, so per-call
// overrides never leak into other calls.
type Policy struct {
	// MaxRetries bounds the retries after the first attempt; 0 means one attempt.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// Multiplier is applied to the delay after every retry; must be > 1.
	Multiplier float64
	// Jitter randomizes each delay within [d*(1-Jitter), d*(1+Jitter)]. Zero keeps
	// delays exact.
	Jitter float64
	// MaxBackoff caps a single delay. Zero leaves delays uncapped.
	MaxBackoff time.Duration
	// AttemptTimeout bounds a single attempt. Zero means no per-attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns 3 retries starting at 300ms and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		Multiplier:     DefaultMultiplier,
	}
}

// Validate checks the policy for values the retry loop cannot honor.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return NewValidationError("max retries must not be negative", "max_retries")
	case p.InitialBackoff <= 0:
		return NewValidationError("initial backoff must be positive", "initial_backoff")
	case p.Multiplier <= 1:
		return NewValidationError("backoff multiplier must be greater than 1", "multiplier")
	case p.Jitter < 0 || p.Jitter > 1:
		return NewValidationError("jitter must be within [0, 1]", "jitter")
	case p.MaxBackoff < 0:
		return NewValidationError("max backoff must not be negative", "max_backoff")
	case p.AttemptTimeout < 0:
		return NewValidationError("attempt timeout must not be negative", "attempt_timeout")
	}
	return nil
}

// Delay returns the wait before retry k (k starts at 0) without jitter:
// InitialBackoff * Multiplier^k, capped by MaxBackoff and by overflow.
func (p Policy) Delay(k int) time.Duration {
	return p.clamp(float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(k)))
}

// clamp converts d to a Duration no larger than MaxBackoff or MaxInt64.
func (p Policy) clamp(d float64) time.Duration {
	delay := time.Duration(math.MaxInt64)
	if d < float64(math.MaxInt64) {
		delay = time.Duration(d)
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// backoff yields successive delays for one call chain.
type backoff struct {
	policy Policy
	retry  int
	random func() float64
}

func newBackoff(p Policy, random func() float64) *backoff {
	return &backoff{policy: p, random: random}
}

// next returns the delay for the upcoming retry and advances the sequence.
// Jitter is applied before the cap, so MaxBackoff bounds the final delay.
func (b *backoff) next() time.Duration {
	k := b.retry
	b.retry++
	if b.policy.Jitter == 0 || b.random == nil {
		return b.policy.Delay(k)
	}
	// scale into [1-j, 1+j)
	factor := 1 - b.policy.Jitter + 2*b.policy.Jitter*b.random()
	return b.policy.clamp(float64(b.policy.InitialBackoff) * math.Pow(b.policy.Multiplier, float64(k)) * factor)
}
