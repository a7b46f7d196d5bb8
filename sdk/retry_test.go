package sdk

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) *retryExecutor {
	return newRetryExecutor(RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	})
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastRetry(3).Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &APIError{StatusCode: http.StatusServiceUnavailable, Message: "down"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	transient := &APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	err := fastRetry(2).Execute(context.Background(), func() error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastRetry(5).Execute(context.Background(), func() error {
		calls++
		return &APIError{StatusCode: http.StatusBadRequest, Message: "bad input"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetry(5).Execute(ctx, func() error {
		return errors.New("network blip")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffIsBounded(t *testing.T) {
	r := newRetryExecutor(RetryConfig{
		MaxRetries:      10,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	})

	for attempt := 1; attempt <= 10; attempt++ {
		d := r.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"server error", &APIError{StatusCode: 500}, true},
		{"unavailable", &APIError{StatusCode: 503}, true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"unauthorized", &APIError{StatusCode: 401}, false},
		{"not found", &APIError{StatusCode: 404}, false},
		{"network error", errors.New("connection refused"), true},
		{"invalid config", ErrInvalidConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
