// Package client is the HTTP client for the mindful API. It implements
// credits.Backend so a credit gate can run against a live server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/credits"
)

// DefaultCookieName is the session cookie the API reads
const DefaultCookieName = "access_token"

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// Is matches chat.ErrInsufficientCredits for a 402 response
func (e *APIError) Is(target error) bool {
	if target == chat.ErrInsufficientCredits {
		return e.StatusCode == http.StatusPaymentRequired || e.Code == chat.CodeInsufficientCredits
	}
	return false
}

// Client calls the mindful REST API on behalf of one session
type Client struct {
	baseURL    string
	token      string
	cookieName string
	httpClient *http.Client
}

var _ credits.Backend = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCookieName overrides the session cookie name
func WithCookieName(name string) Option {
	return func(c *Client) { c.cookieName = name }
}

// New creates a client for baseURL authenticated with token
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		cookieName: DefaultCookieName,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCount returns the remaining message credits
func (c *Client) ChatCount(ctx context.Context) (int, error) {
	var resp chat.ChatCountResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat-count", nil, http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return resp.ChatCount, nil
}

// ListMessages returns the thread in server order
func (c *Client) ListMessages(ctx context.Context) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages", nil, http.StatusOK, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a message. Only 201 with the created message counts
// as success.
func (c *Client) SendMessage(ctx context.Context, content string) (*chat.Message, error) {
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", chat.SendMessageRequest{Content: content}, http.StatusCreated, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BuyMessages starts a credit purchase and returns the payment URL
func (c *Client) BuyMessages(ctx context.Context, req chat.BuyMessagesRequest) (*chat.BuyMessagesResponse, error) {
	var resp chat.BuyMessagesResponse
	if err := c.do(ctx, http.MethodPost, "/api/buy-messages", req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentURL == "" {
		return nil, errors.New("api: response missing payment_url")
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp chat.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil {
			apiErr.Code = errResp.Error
			apiErr.Message = errResp.Message
		}
		if apiErr.Message == "" && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			apiErr.Message = fmt.Sprintf("unexpected status, want %d", wantStatus)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
