package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.razorpay.com/v1"

var ErrNotConfigured = errors.New("razorpay: key id and secret are not configured")

type Client struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	HTTP      *http.Client
}

func NewClient(keyID, keySecret string) *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.KeyID != "" && c.KeySecret != ""
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.Currency == "" {
		req.Currency = "INR"
	}
	var out Order
	err := c.do(ctx, "create order", http.MethodPost, "/orders", req, &out)
	return out, err
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	var out Payment
	err := c.do(ctx, "fetch payment", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out)
	return out, err
}

func (c *Client) CapturePayment(ctx context.Context, paymentID string, amount int64, currency string) (Payment, error) {
	if currency == "" {
		currency = "INR"
	}
	body := map[string]any{"amount": amount, "currency": currency}
	var out Payment
	err := c.do(ctx, "capture payment", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/capture", body, &out)
	return out, err
}

// Refund refunds amount paise of a captured payment; zero refunds in full.
func (c *Client) Refund(ctx context.Context, paymentID string, amount int64, reason string) (Refund, error) {
	body := map[string]any{}
	if amount > 0 {
		body["amount"] = amount
	}
	if reason != "" {
		body["notes"] = map[string]string{"reason": reason}
	}
	var out Refund
	err := c.do(ctx, "refund payment", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refund", body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("razorpay %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("razorpay %s: read body: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &Error{Op: op, StatusCode: resp.StatusCode}
		var envelope struct {
			Error *Error `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("razorpay %s: decode: %w", op, err)
	}
	return nil
}
