package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "https://apiv2.shiprocket.in/v1/external"
	tokenTTL       = 24 * time.Hour

	defaultDimension = 10
	defaultWeight    = 0.5
)

type Config struct {
	BaseURL  string
	Email    string
	Password string
	HTTP     *http.Client
}

// tokenCache holds the bearer token for one client instance.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (tc *tokenCache) get(now time.Time) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.token == "" || !now.Before(tc.expiresAt) {
		return "", false
	}
	return tc.token, true
}

func (tc *tokenCache) set(token string, expiresAt time.Time) {
	tc.mu.Lock()
	tc.token = token
	tc.expiresAt = expiresAt
	tc.mu.Unlock()
}

func (tc *tokenCache) invalidate(token string) {
	tc.mu.Lock()
	if tc.token == token {
		tc.token = ""
		tc.expiresAt = time.Time{}
	}
	tc.mu.Unlock()
}

type Client struct {
	baseURL  string
	email    string
	password string
	http     *http.Client

	tokens tokenCache
	login  singleflight.Group
	now    func() time.Time
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  base,
		email:    cfg.Email,
		password: cfg.Password,
		http:     hc,
		now:      time.Now,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.email != "" && c.password != ""
}

// Authenticate logs in and caches the token for 24 hours. Concurrent
// callers share one login request.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	v, err, _ := c.login.Do("login", func() (any, error) {
		if token, ok := c.tokens.get(c.now()); ok {
			return token, nil
		}
		var out struct {
			Token string `json:"token"`
		}
		creds := map[string]string{"email": c.email, "password": c.password}
		if err := c.send(ctx, "authenticate", http.MethodPost, "/auth/login", "", creds, &out); err != nil {
			return "", err
		}
		if out.Token == "" {
			return "", errors.New("shiprocket authenticate: no token received")
		}
		c.tokens.set(out.Token, c.now().Add(tokenTTL))
		return out.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if token, ok := c.tokens.get(c.now()); ok {
		return token, nil
	}
	return c.Authenticate(ctx)
}

// CreateOrder posts an adhoc order, filling package defaults.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (CreateOrderResponse, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = "Prepaid"
	}
	if req.ShippingCustomerName == "" {
		req.ShippingIsBilling = true
	}
	if req.Length == 0 {
		req.Length = defaultDimension
	}
	if req.Breadth == 0 {
		req.Breadth = defaultDimension
	}
	if req.Height == 0 {
		req.Height = defaultDimension
	}
	if req.Weight == 0 {
		req.Weight = defaultWeight
	}

	var out CreateOrderResponse
	err := c.call(ctx, "create order", http.MethodPost, "/orders/create/adhoc", req, &out)
	return out, err
}

func (c *Client) TrackShipment(ctx context.Context, shipmentID string) (TrackingResponse, error) {
	out := TrackingResponse{}
	err := c.call(ctx, "track shipment", http.MethodGet, "/courier/track/shipment/"+url.PathEscape(shipmentID), nil, &out)
	return out, err
}

func (c *Client) CancelOrder(ctx context.Context, shipmentID string) (CancelResponse, error) {
	body := map[string][]string{"ids": {shipmentID}}
	var out CancelResponse
	err := c.call(ctx, "cancel order", http.MethodPost, "/orders/cancel", body, &out)
	return out, err
}

// CheckAndUpdateOrderDetails fetches the provider's view of an order.
func (c *Client) CheckAndUpdateOrderDetails(ctx context.Context, shiprocketOrderID string) (OrderDetails, error) {
	var out OrderDetailsResponse
	if err := c.call(ctx, "order details", http.MethodGet, "/orders/show/"+url.PathEscape(shiprocketOrderID), nil, &out); err != nil {
		return OrderDetails{}, err
	}
	return out.Data.Normalized(), nil
}

// GetCourierList returns couriers serving a reference Delhi to Mumbai lane.
func (c *Client) GetCourierList(ctx context.Context) (Serviceability, error) {
	return c.CalculateShipping(ctx, "110001", "400001", defaultWeight)
}

func (c *Client) CalculateShipping(ctx context.Context, pickupPincode, deliveryPincode string, weight float64) (Serviceability, error) {
	q := url.Values{}
	q.Set("pickup_postcode", pickupPincode)
	q.Set("delivery_postcode", deliveryPincode)
	q.Set("weight", strconv.FormatFloat(weight, 'f', -1, 64))
	q.Set("cod", "0")

	var out Serviceability
	err := c.call(ctx, "serviceability", http.MethodGet, "/courier/serviceability?"+q.Encode(), nil, &out)
	return out, err
}

// call sends an authenticated request. A 401 drops the cached token and
// retries once with a fresh login.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	err = c.send(ctx, op, method, path, token, in, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.tokens.invalidate(token)
		if token, err = c.Authenticate(ctx); err != nil {
			return err
		}
		return c.send(ctx, op, method, path, token, in, out)
	}
	return err
}

func (c *Client) send(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("shiprocket %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shiprocket %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("shiprocket %s: read body: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("shiprocket %s: decode: %w", op, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
