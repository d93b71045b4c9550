package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Demo is the usage block the gateway attaches to successful responses.
type Demo struct {
	Usage     int64  `json:"usage"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	DeviceID  string `json:"deviceId"`
}

// Response is one gateway round trip. Demo is nil when the gateway did not
// attach a usage block (errors, unparseable upstream bodies).
type Response struct {
	StatusCode int
	Body       map[string]json.RawMessage
	Demo       *Demo
	ErrorCode  string
}

type Client struct {
	gatewayURL string
	store      *Store
	httpClient *http.Client
}

func New(gatewayURL string, store *Store, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		gatewayURL: gatewayURL,
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete sends one upstream-bound payload through the gateway with the
// identification block injected. parallelCount is how many quota units this
// call represents; pass 0 for a free retry.
func (c *Client) Complete(ctx context.Context, payload map[string]interface{}, parallelCount int64) (*Response, error) {
	meta, err := c.store.Meta(parallelCount)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve client identity: %w", err)
	}

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["_meta"] = meta

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	result := &Response{StatusCode: resp.StatusCode}

	if err := json.Unmarshal(respBody, &result.Body); err != nil {
		return result, nil
	}

	if raw, ok := result.Body["_demo"]; ok {
		var demo Demo
		if err := json.Unmarshal(raw, &demo); err == nil {
			result.Demo = &demo
		}
	}
	if raw, ok := result.Body["code"]; ok {
		json.Unmarshal(raw, &result.ErrorCode)
	}

	return result, nil
}
