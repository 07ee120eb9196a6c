package resilience

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HTTPClient wraps a pooled http.Client with circuit breaker and retry
// behavior for upstream API calls.
type HTTPClient struct {
	client  *http.Client
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewHTTPClient builds a client whose transport keeps idle connections
// warm for repeated calls to the same host.
func NewHTTPClient(maxIdle int, timeout time.Duration, breaker *CircuitBreaker) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		breaker: breaker,
		retry:   DefaultRetryConfig(),
	}
}

// Do executes a request with breaker protection and retries on
// retryable status codes.
func (hc *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	var resp *http.Response

	err := hc.breaker.Call(func() error {
		var innerErr error
		resp, innerErr = RetryHTTP(ctx, hc.retry, func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, method, url, nil)
			if err != nil {
				return nil, err
			}
			for key, value := range headers {
				req.Header.Set(key, value)
			}

			start := time.Now()
			r, err := hc.client.Do(req)
			if err != nil {
				slog.Warn("request failed", "url", url, "error", err, "duration_ms", time.Since(start).Milliseconds())
				return nil, err
			}
			slog.Debug("request completed", "url", url, "status", r.StatusCode, "duration_ms", time.Since(start).Milliseconds())
			return r, nil
		})
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stats reports client state for the health endpoint.
func (hc *HTTPClient) Stats() map[string]interface{} {
	return map[string]interface{}{
		"circuit_breaker_state": hc.breaker.State().String(),
		"timeout_ms":            hc.client.Timeout.Milliseconds(),
	}
}

// Close releases idle connections.
func (hc *HTTPClient) Close() error {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
