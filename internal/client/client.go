// Package client is a Go client for the payguard HTTP API.
package client

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

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payguard returned status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.IntentResponse, error) {
	var out domain.IntentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/intents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetIntent(ctx context.Context, intentID string) (*domain.IntentResponse, error) {
	var out domain.IntentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/intents/"+url.PathEscape(intentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIntents lists intents, optionally restricted to one status.
func (c *Client) ListIntents(ctx context.Context, status string, limit int) ([]domain.IntentResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/v1/intents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Intents []domain.IntentResponse `json:"intents"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Intents, nil
}

func (c *Client) SimulateIntent(ctx context.Context, intentID string) (*domain.IntentResponse, error) {
	return c.transition(ctx, intentID, "simulate", nil)
}

func (c *Client) ApproveIntent(ctx context.Context, intentID string, req domain.ApprovalDecisionRequest) (*domain.IntentResponse, error) {
	return c.transition(ctx, intentID, "approve", req)
}

func (c *Client) RejectIntent(ctx context.Context, intentID string, req domain.ApprovalDecisionRequest) (*domain.IntentResponse, error) {
	return c.transition(ctx, intentID, "reject", req)
}

func (c *Client) ExecuteIntent(ctx context.Context, intentID string) (*domain.IntentResponse, error) {
	return c.transition(ctx, intentID, "execute", nil)
}

func (c *Client) ReplayIntent(ctx context.Context, intentID string) (*domain.ReplayReport, error) {
	var out domain.ReplayReport
	if err := c.do(ctx, http.MethodGet, "/v1/intents/"+url.PathEscape(intentID)+"/replay", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetIntentEvents(ctx context.Context, intentID string) ([]domain.Event, error) {
	var out struct {
		Events []domain.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/intents/"+url.PathEscape(intentID)+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) transition(ctx context.Context, intentID, op string, body interface{}) (*domain.IntentResponse, error) {
	var out domain.IntentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/intents/"+url.PathEscape(intentID)+"/"+op, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to call %s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
