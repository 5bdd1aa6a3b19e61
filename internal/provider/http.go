package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout     = 10 * time.Second
	maxErrorBodyBytes  = 4 << 10
	checkoutSessionsEP = "/v1/checkout/sessions"
)

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	Observer  Observer
}

// HTTPClient calls the provider's REST API with a bounded per-request timeout.
type HTTPClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	timeout   time.Duration
	observer  Observer
}

// NewHTTPClient builds a provider client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: timeout},
		timeout:   timeout,
		observer:  cfg.Observer,
	}
}

// APIError is the provider's error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// CreateCheckoutSession opens a one-line-item payment checkout. The client
// reference id doubles as the provider idempotency key so a retried create
// returns the same session.
func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.ClientReferenceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	form.Set("metadata[owner_id]", req.OwnerID)
	form.Set("metadata[topup_session_id]", req.ClientReferenceID)

	var out CheckoutSession
	err := c.do(ctx, "create_checkout_session", http.MethodPost, checkoutSessionsEP, form, req.ClientReferenceID, &out)
	return out, err
}

// GetCheckoutSession fetches the authoritative status of a checkout session.
func (c *HTTPClient) GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	if id == "" {
		return CheckoutSession{}, ErrNotFound
	}
	var out CheckoutSession
	err := c.do(ctx, "get_checkout_session", http.MethodGet, checkoutSessionsEP+"/"+url.PathEscape(id), nil, "", &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, form url.Values, idemKey string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveProviderRequest(op, outcome(err), time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classify(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, op, err)
	}
	return nil
}

func classify(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var envelope struct {
		Error APIError `json:"error"`
	}
	_ = json.Unmarshal(raw, &envelope)
	apiErr := envelope.Error
	apiErr.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %w", ErrUnavailable, &apiErr)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, &apiErr)
	default:
		return fmt.Errorf("%w: %w", ErrRejected, &apiErr)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}
