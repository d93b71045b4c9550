// Package upstream holds the thin pass-through client for the paid completion
// API. The gateway forwards sanitized payloads with its own credential; the
// caller never sees or supplies that credential.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/screenlens/demo-gateway/internal/circuitbreaker"
)

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

// Result is one upstream response. Body is always the raw bytes so that
// upstream error detail survives verbatim; JSON is the parsed object when the
// body parses, nil otherwise.
type Result struct {
	StatusCode int
	Body       []byte
	JSON       map[string]interface{}
}

// Succeeded reports whether the upstream accepted the call.
func (r *Result) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func New(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures:     5,
			Timeout:         30 * time.Second,
			HalfOpenSuccess: 1,
		}),
	}
}

// Complete forwards one sanitized payload upstream. A transport-level failure
// or timeout returns an error; an HTTP-level upstream failure returns a
// Result carrying the upstream's own status and body. Only transport failures
// count against the circuit breaker.
func (c *Client) Complete(ctx context.Context, body []byte) (*Result, error) {
	var result *Result

	err := c.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build upstream request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("upstream request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read upstream response: %w", err)
		}

		result = &Result{
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}

		var parsed map[string]interface{}
		if json.Unmarshal(respBody, &parsed) == nil {
			result.JSON = parsed
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// BreakerMetrics exposes circuit state for the operations surface.
func (c *Client) BreakerMetrics() circuitbreaker.Metrics {
	return c.breaker.Metrics()
}

// ResetBreaker manually closes the circuit.
func (c *Client) ResetBreaker() {
	c.breaker.Reset()
}
