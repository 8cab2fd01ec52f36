package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("rzp_test", "secret")
	c.BaseURL = srv.URL
	return c
}

func TestCreateOrder_SendsBasicAuthAndDefaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/orders", r.URL.Path)

		var body CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(49900), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, 1, body.PaymentCapture)

		w.Write([]byte(`{"id":"order_RZP1","amount":49900,"currency":"INR","receipt":"r1","status":"created"}`))
	})

	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{Amount: 49900, Receipt: "r1", PaymentCapture: 1})
	require.NoError(t, err)
	assert.Equal(t, "order_RZP1", order.ID)
	assert.Equal(t, "created", order.Status)
}

func TestClient_DecodesErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"This payment has already been captured"}}`))
	})

	_, err := c.CapturePayment(context.Background(), "pay_1", 100, "")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
	assert.Contains(t, err.Error(), "already been captured")
}

func TestRefund_PartialAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1/refund", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 500, body["amount"])
		w.Write([]byte(`{"id":"rfnd_1","payment_id":"pay_1","amount":500,"status":"processed"}`))
	})

	refund, err := c.Refund(context.Background(), "pay_1", 500, "damaged")
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", refund.ID)
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", "").FetchPayment(context.Background(), "pay_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
