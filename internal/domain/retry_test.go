package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"fixed first", RetryPolicy{Backoff: BackoffFixed, BaseDelay: time.Second}, 1, time.Second},
		{"fixed later", RetryPolicy{Backoff: BackoffFixed, BaseDelay: time.Second}, 5, time.Second},
		{"exponential first", RetryPolicy{Backoff: BackoffExponential, BaseDelay: 100 * time.Millisecond}, 1, 100 * time.Millisecond},
		{"exponential third", RetryPolicy{Backoff: BackoffExponential, BaseDelay: 100 * time.Millisecond}, 3, 400 * time.Millisecond},
		{"exponential capped", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second, MaxDelay: 5 * time.Second}, 10, 5 * time.Second},
		{"huge attempt stays capped", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Minute}, 500, time.Minute},
		{"zero attempt treated as first", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second}, 0, time.Second},
		{"zero base", RetryPolicy{Backoff: BackoffExponential}, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, RetryableKinds: []string{"http"}}

	assert.True(t, policy.ShouldRetry(&NodeFailure{Kind: "http", Retryable: true}, 1))
	assert.True(t, policy.ShouldRetry(&NodeFailure{Kind: "http", Retryable: true}, 2))
	assert.False(t, policy.ShouldRetry(&NodeFailure{Kind: "http", Retryable: true}, 3))
	assert.False(t, policy.ShouldRetry(&NodeFailure{Kind: "http", Retryable: false}, 1))
	assert.False(t, policy.ShouldRetry(&NodeFailure{Kind: "parse", Retryable: true}, 1))
	assert.False(t, policy.ShouldRetry(nil, 1))

	open := RetryPolicy{MaxAttempts: 2}
	assert.True(t, open.ShouldRetry(&NodeFailure{Kind: "anything", Retryable: true}, 1))
}

func TestResolveRetryPolicy(t *testing.T) {
	base := RetryPolicy{MaxAttempts: 1, Backoff: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Minute}
	described := &RetryPolicy{MaxAttempts: 4, RetryableKinds: []string{"http"}}
	override := &RetryPolicy{BaseDelay: 10 * time.Millisecond}

	resolved, err := ResolveRetryPolicy(base, described, nil, override)
	require.NoError(t, err)

	assert.Equal(t, 4, resolved.MaxAttempts)
	assert.Equal(t, BackoffExponential, resolved.Backoff)
	assert.Equal(t, 10*time.Millisecond, resolved.BaseDelay)
	assert.Equal(t, time.Minute, resolved.MaxDelay)
	assert.Equal(t, []string{"http"}, resolved.RetryableKinds)

	assert.Equal(t, 1, base.MaxAttempts, "base must not be mutated")
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())
	assert.ErrorIs(t, RetryPolicy{MaxAttempts: -1}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, RetryPolicy{Backoff: "linear"}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, RetryPolicy{BaseDelay: -time.Second}.Validate(), ErrInvalidInput)
}
