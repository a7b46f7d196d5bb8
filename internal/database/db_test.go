package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

// dialFailure mirrors the error chain pgx produces when the server is
// unreachable: a wrapped *net.OpError from the dial.
func dialFailure() error {
	return fmt.Errorf("failed to connect to `host=127.0.0.1 port=1`: %w",
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")})
}

func TestClassifyUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"dial refused", dialFailure()},
		{"deadline exceeded", fmt.Errorf("query: %w", context.DeadlineExceeded)},
		{"context canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "get feature")
			assert.ErrorIs(t, got, ErrStoreUnavailable)
		})
	}
}

func TestClassifyQueryErrorPassesThrough(t *testing.T) {
	base := errors.New(`relation "nope" does not exist`)

	got := classify(base, "query features")

	assert.NotErrorIs(t, got, ErrStoreUnavailable)
	assert.ErrorIs(t, got, base)
	assert.Contains(t, got.Error(), "failed to query features")
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify(nil, "get feature"))
	assert.NoError(t, classifyRegistry(nil, "get feature"))
}

func TestClassifyRegistryUnavailable(t *testing.T) {
	got := classifyRegistry(dialFailure(), "get feature")

	assert.ErrorIs(t, got, ErrRegistryUnavailable)
	assert.NotErrorIs(t, got, ErrStoreUnavailable)
}

func TestClassifyRegistryQueryErrorPassesThrough(t *testing.T) {
	base := errors.New("duplicate key value violates unique constraint")

	got := classifyRegistry(base, "register feature")

	assert.NotErrorIs(t, got, ErrRegistryUnavailable)
	assert.ErrorIs(t, got, base)
}
