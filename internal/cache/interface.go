package cache

import (
	"context"
	"time"
)

// Cache defines the low-latency feature cache tier.
//
// Failure policy: read and write errors are soft. A failed GetMany reports
// every key as absent so the caller falls through to the durable store, and
// SetMany is best-effort. Only Invalidate surfaces errors, because the caller
// explicitly requested the mutation.
type Cache interface {
	// GetMany retrieves entries for the given keys in one pipelined
	// round-trip. The result preserves input order; a nil element means the
	// key was absent or its entry failed to decode.
	GetMany(ctx context.Context, keys []string) ([]*Entry, error)

	// SetMany stores entries with a shared TTL in one pipelined round-trip.
	SetMany(ctx context.Context, entries map[string]*Entry, ttl time.Duration) error

	// Invalidate deletes all keys matching a glob-style pattern and returns
	// the advisory count of deleted keys.
	Invalidate(ctx context.Context, pattern string) (int, error)

	// Ping checks if the cache is healthy.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// CacheError represents a cache-specific error.
type CacheError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewCacheError creates a new cache error.
func NewCacheError(message string, retryable bool) *CacheError {
	return &CacheError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *CacheError) Unwrap() error {
	return e.Underlying
}

// WithError adds an underlying error.
func (e *CacheError) WithError(err error) *CacheError {
	e.Underlying = err
	return e
}

// IsRetryable returns whether the error is retryable.
func (e *CacheError) IsRetryable() bool {
	return e.Retryable
}
