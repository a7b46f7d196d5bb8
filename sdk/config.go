package sdk

import (
	"time"
)

// Config holds the configuration for the feature store client.
// All fields except BaseURL have sensible defaults.
//
// Configuration uses the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://feathers.example.com").
//	    WithAPIKey("secret").
//	    WithTimeout(10 * time.Second).
//	    WithRetries(5)
type Config struct {
	// BaseURL is the base URL of the feature store API.
	// Default: "http://localhost:8080"
	BaseURL string

	// APIKey is sent as the X-API-Key header on every request.
	// Leave empty for unauthenticated deployments.
	APIKey string

	// Timeout is the HTTP request timeout, including connection time
	// and reading the response body.
	// Default: 30s
	Timeout time.Duration

	// RetryConfig configures automatic retry behavior for transient
	// failures.
	RetryConfig RetryConfig

	// TransportConfig configures connection pooling.
	TransportConfig TransportConfig

	// Headers are custom headers included in all requests.
	Headers map[string]string
}

// RetryConfig holds retry settings. The client uses exponential backoff
// with jitter.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Set to 0 to disable retries.
	// Default: 3
	MaxRetries int

	// InitialInterval is the approximate delay before the first retry.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries.
	// Default: 5s
	MaxInterval time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64
}

// TransportConfig holds HTTP connection pool settings.
type TransportConfig struct {
	// MaxIdleConns controls the maximum idle connections across all hosts.
	// Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection is kept open.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with defaults suitable for most use cases.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8080",
		Timeout: 30 * time.Second,
		RetryConfig: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
		},
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Headers: make(map[string]string),
	}
}

// WithBaseURL sets the base URL of the feature store API.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithAPIKey sets the API key sent with every request.
func (c *Config) WithAPIKey(key string) *Config {
	c.APIKey = key
	return c
}

// WithTimeout sets the request timeout for all operations.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetries sets the maximum number of retry attempts.
// Set to 0 to disable automatic retries.
func (c *Config) WithRetries(maxRetries int) *Config {
	c.RetryConfig.MaxRetries = maxRetries
	return c
}

// WithHeader adds a custom header to all requests.
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// Validate validates the configuration and fills in defaults for missing
// values. Called automatically by NewClient.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrInvalidConfig
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryConfig.MaxRetries < 0 {
		c.RetryConfig.MaxRetries = 0
	}
	if c.RetryConfig.InitialInterval <= 0 {
		c.RetryConfig.InitialInterval = 100 * time.Millisecond
	}
	if c.RetryConfig.MaxInterval <= 0 {
		c.RetryConfig.MaxInterval = 5 * time.Second
	}
	if c.RetryConfig.Multiplier <= 1 {
		c.RetryConfig.Multiplier = 2.0
	}
	return nil
}
