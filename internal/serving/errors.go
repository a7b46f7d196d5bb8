package serving

import "errors"

var (
	// ErrServeUnavailable indicates the durable store could not answer a read
	// that the cache alone could not satisfy. Maps to HTTP 503.
	ErrServeUnavailable = errors.New("feature serving unavailable")
)
