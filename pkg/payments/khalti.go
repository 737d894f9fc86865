// Package payments is a client for the Khalti ePayment gateway. A purchase
// is initiated server-side, the user is redirected to the returned
// payment_url, and Khalti sends them back to the configured return URL with
// a pidx query parameter that is then confirmed through Lookup.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Status is the payment state reported by Lookup
type Status string

const (
	StatusCompleted     Status = "Completed"
	StatusPending       Status = "Pending"
	StatusInitiated     Status = "Initiated"
	StatusRefunded      Status = "Refunded"
	StatusExpired       Status = "Expired"
	StatusUserCanceled  Status = "User canceled"
	StatusPartialRefund Status = "Partially Refunded"
)

// Final reports whether the status will not change again
func (s Status) Final() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusExpired, StatusUserCanceled, StatusPartialRefund:
		return true
	}
	return false
}

// CustomerInfo is optional payer information shown on the Khalti page
type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// InitiateRequest starts a payment. Amount is in paisa.
type InitiateRequest struct {
	ReturnURL         string        `json:"return_url"`
	WebsiteURL        string        `json:"website_url"`
	Amount            int64         `json:"amount"`
	PurchaseOrderID   string        `json:"purchase_order_id"`
	PurchaseOrderName string        `json:"purchase_order_name"`
	CustomerInfo      *CustomerInfo `json:"customer_info,omitempty"`
}

// InitiateResponse carries the redirect target for the payer
type InitiateResponse struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExpiresIn  int       `json:"expires_in"`
}

// LookupResponse is the gateway's view of a payment
type LookupResponse struct {
	Pidx          string  `json:"pidx"`
	TotalAmount   int64   `json:"total_amount"`
	Status        Status  `json:"status"`
	TransactionID *string `json:"transaction_id"`
	Fee           int64   `json:"fee"`
	Refunded      bool    `json:"refunded"`
}

// Transaction returns the transaction ID or ""
func (r *LookupResponse) Transaction() string {
	if r.TransactionID == nil {
		return ""
	}
	return *r.TransactionID
}

// GatewayError is returned for non-2xx gateway responses
type GatewayError struct {
	StatusCode int
	Detail     string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("khalti: status %d: %s", e.StatusCode, e.Detail)
}

// Gateway is the subset of the Khalti API the billing service needs
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	Lookup(ctx context.Context, pidx string) (*LookupResponse, error)
}

// Client talks to the Khalti ePayment v2 API
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

var _ Gateway = (*Client)(nil)

// NewClient creates a Khalti client. baseURL is e.g.
// https://a.khalti.com/api/v2 for production.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Initiate registers a payment and returns the pidx and payment URL
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.Amount <= 0 {
		return nil, errors.New("khalti: amount must be positive")
	}
	if req.PurchaseOrderID == "" || req.ReturnURL == "" || req.WebsiteURL == "" {
		return nil, errors.New("khalti: return_url, website_url and purchase_order_id are required")
	}

	var resp InitiateResponse
	if _, err := c.post(ctx, "/epayment/initiate/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Pidx == "" || resp.PaymentURL == "" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Detail: "response missing pidx or payment_url"}
	}
	return &resp, nil
}

// Lookup returns the current state of a payment. Khalti reports some final
// states such as Expired with a 4xx status; those are returned as a normal
// response.
func (c *Client) Lookup(ctx context.Context, pidx string) (*LookupResponse, error) {
	if pidx == "" {
		return nil, errors.New("khalti: pidx is required")
	}

	var resp LookupResponse
	body, err := c.post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx}, &resp)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode < 500 && body != nil {
			var final LookupResponse
			if json.Unmarshal(body, &final) == nil && final.Status.Final() {
				return &final, nil
			}
		}
		return nil, err
	}
	return &resp, nil
}

// post sends a JSON request and decodes a 2xx body into out. On gateway
// errors it also returns the raw body.
func (c *Client) post(ctx context.Context, path string, in, out interface{}) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("khalti: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("khalti: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("khalti: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("khalti: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &GatewayError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return body, fmt.Errorf("khalti: failed to decode response: %w", err)
	}
	return body, nil
}

// errorDetail extracts a readable message from a Khalti error body, which
// is either {"detail": "..."} or a map of field names to message lists
func errorDetail(body []byte) string {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return strings.TrimSpace(string(body))
	}

	var detail string
	if raw, ok := generic["detail"]; ok && json.Unmarshal(raw, &detail) == nil {
		return detail
	}

	var parts []string
	for field, raw := range generic {
		if field == "error_key" || field == "status_code" {
			continue
		}
		var msgs []string
		if json.Unmarshal(raw, &msgs) == nil && len(msgs) > 0 {
			parts = append(parts, field+": "+strings.Join(msgs, ", "))
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(string(body))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
