package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// httpTransport handles HTTP communication with the feature store API,
// with retry logic layered on top of a pooled net/http client.
type httpTransport struct {
	client        *http.Client
	config        *Config
	baseURL       *url.URL
	retryExecutor *retryExecutor
}

func newHTTPTransport(config *Config) (*httpTransport, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL must have a scheme and host")
	}

	transport := &http.Transport{
		MaxIdleConns:        config.TransportConfig.MaxIdleConns,
		MaxConnsPerHost:     config.TransportConfig.MaxConnsPerHost,
		IdleConnTimeout:     config.TransportConfig.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &httpTransport{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config:        config,
		baseURL:       baseURL,
		retryExecutor: newRetryExecutor(config.RetryConfig),
	}, nil
}

func (t *httpTransport) do(ctx context.Context, method, path string, body, result interface{}) error {
	return t.retryExecutor.Execute(ctx, func() error {
		return t.performRequest(ctx, method, path, body, result)
	})
}

func (t *httpTransport) performRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path: %w", err)
	}
	fullURL := t.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "birb-feathers-go-sdk/1.0.0")
	if t.config.APIKey != "" {
		req.Header.Set("X-API-Key", t.config.APIKey)
	}
	for key, value := range t.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil
	}

	apiErr := parseAPIError(resp.StatusCode, respBody)
	if reqID := resp.Header.Get("X-Request-Id"); reqID != "" {
		apiErr.RequestID = reqID
	}
	return apiErr
}

func (t *httpTransport) get(ctx context.Context, path string, result interface{}) error {
	return t.do(ctx, http.MethodGet, path, nil, result)
}

func (t *httpTransport) post(ctx context.Context, path string, body, result interface{}) error {
	return t.do(ctx, http.MethodPost, path, body, result)
}

func (t *httpTransport) delete(ctx context.Context, path string, result interface{}) error {
	return t.do(ctx, http.MethodDelete, path, nil, result)
}

func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}

// buildPath substitutes {0}, {1}, ... placeholders with URL-escaped
// arguments. Feature names and entity IDs may contain characters that
// are unsafe in URL paths.
func buildPath(pattern string, args ...string) string {
	path := pattern
	for i, arg := range args {
		placeholder := fmt.Sprintf("{%d}", i)
		escaped := url.QueryEscape(arg)
		escaped = strings.Replace(escaped, "+", "%20", -1)
		path = strings.Replace(path, placeholder, escaped, 1)
	}
	return path
}
