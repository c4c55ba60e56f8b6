package domain

import (
	"fmt"
	"math"
	"time"

	"dario.cat/mergo"
)

type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy bounds how often a failing node is re-invoked. MaxAttempts
// counts every invocation including the first.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Backoff        BackoffKind   `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	BaseDelay      time.Duration `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
	MaxDelay       time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	RetryableKinds []string      `json:"retryable_kinds,omitempty" yaml:"retryable_kinds,omitempty"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		Backoff:     BackoffExponential,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}
}

func (p RetryPolicy) Clone() RetryPolicy {
	p.RetryableKinds = append([]string(nil), p.RetryableKinds...)
	return p
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative: %w", ErrInvalidInput)
	}
	if p.Backoff != "" && p.Backoff != BackoffFixed && p.Backoff != BackoffExponential {
		return fmt.Errorf("unknown backoff %q: %w", p.Backoff, ErrInvalidInput)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative: %w", ErrInvalidInput)
	}
	return nil
}

// Allows reports whether a failure of the given kind may be retried.
func (p RetryPolicy) Allows(kind string) bool {
	if len(p.RetryableKinds) == 0 {
		return true
	}
	for _, k := range p.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ShouldRetry applies the retry law: retry while attempts < MaxAttempts.
func (p RetryPolicy) ShouldRetry(failure *NodeFailure, attempts int) bool {
	if failure == nil || !failure.Retryable {
		return false
	}
	return p.Allows(failure.Kind) && attempts < p.MaxAttempts
}

// Delay returns the wait before the attempt following `attempt` failures.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	if p.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
			if delay <= 0 {
				delay = p.MaxDelay
				if delay == 0 && p.BaseDelay > 0 {
					delay = time.Duration(math.MaxInt64)
				}
				break
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// ResolveRetryPolicy layers overrides onto base; later layers win for every
// non-zero field.
func ResolveRetryPolicy(base RetryPolicy, layers ...*RetryPolicy) (RetryPolicy, error) {
	resolved := base.Clone()
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if err := mergo.Merge(&resolved, layer.Clone(), mergo.WithOverride); err != nil {
			return base, fmt.Errorf("failed to merge retry policy: %w", err)
		}
	}
	return resolved, nil
}
