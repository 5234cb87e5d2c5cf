package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPDownstreamClient pushes identity mutations to an external user
// directory over HTTP, grounded on the Router's mediator.HTTPMediator
// request shape (internal/router/mediator/http.go) but without its retry
// loop, since the Worker's own circuit breaker and at-least-once queue
// already cover retries across ticks.
type HTTPDownstreamClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPDownstreamClient builds a client that POSTs to baseURL with the
// given API key as a bearer credential.
func NewHTTPDownstreamClient(baseURL, apiKey string) *HTTPDownstreamClient {
	return &HTTPDownstreamClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type syncPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	Operation string `json:"operation"`
}

// Sync pushes one identity mutation downstream, returning the HTTP status
// code it responded with so the Worker can classify permanent vs.
// transient failures.
func (c *HTTPDownstreamClient) Sync(ctx context.Context, req SyncRequest) (int, error) {
	body, err := json.Marshal(syncPayload{
		UserID:    req.UserID,
		Username:  req.Username,
		Password:  req.Password,
		Operation: string(req.Operation),
	})
	if err != nil {
		return 0, fmt.Errorf("identity http client: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/sync", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("identity http client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("identity http client: request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
