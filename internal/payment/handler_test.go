package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/storefront-backend/internal/razorpay"
)

func makeAppWithPaymentHandler(h *Handler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-User-ID"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				c.Locals("user", &jwt.Token{Claims: jwt.MapClaims{"user_id": id}})
			}
		}
		return c.Next()
	})
	h.RegisterPublicRoutes(app)
	h.RegisterProtectedRoutes(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(res.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return res.StatusCode, out
}

var asUser1 = map[string]string{"X-User-ID": "1"}

const createOrderBody = `{
	"amount":44800,"receipt":"rcpt_1","orderTotal":448,
	"orderItems":[{"productId":"p1","title":"Leash","quantity":2,"price":199}],
	"shippingAddress":{"houseName":"4B","streetArea":"Park Street","city":"Kolkata","state":"WB","country":"India","pincode":"700016"},
	"billingAddress":{"houseName":"4B","streetArea":"Park Street","city":"Kolkata","state":"WB","country":"India","pincode":"700016"}
}`

func TestCreateOrderRoute(t *testing.T) {
	f := newFixture(t)
	app := makeAppWithPaymentHandler(NewHandler(f.svc))

	status, body := doRequest(t, app, "POST", "/api/payment/create-order", createOrderBody, asUser1)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "order_rzpA", data["razorpayOrderId"])
	assert.Equal(t, "rzp_test_key", data["key"])
	assert.EqualValues(t, 44800, data["amount"])
	assert.Equal(t, "rcpt_1", f.gateway.created[0].Receipt)

	status, body = doRequest(t, app, "POST", "/payment/create-order", `{"amount":50,"orderTotal":1,"orderItems":[],"shippingAddress":{},"billingAddress":{}}`, asUser1)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Amount must be at least 100 paise (1 INR)", body["message"])
}

func TestPaymentRoutes_UnavailableWithoutKeys(t *testing.T) {
	f := newFixture(t)
	f.gateway.configured = false
	app := makeAppWithPaymentHandler(NewHandler(f.svc))

	status, body := doRequest(t, app, "POST", "/api/payment/create-order", createOrderBody, asUser1)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "Payment service is currently unavailable. Please try again later.", body["message"])

	status, _ = doRequest(t, app, "POST", "/api/payment/payment-webhook", `{"event":"payment.captured"}`, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestVerifyPaymentRoute(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.CreateOrder(context.Background(), 1, createInput())
	require.NoError(t, err)
	app := makeAppWithPaymentHandler(NewHandler(f.svc))

	proof := proofFor(session.RazorpayOrderID, "pay_1")
	body, err := json.Marshal(proof)
	require.NoError(t, err)

	status, res := doRequest(t, app, "POST", "/api/payment/verify-payment", string(body), asUser1)
	require.Equal(t, fiber.StatusCreated, status, res)
	data := res["data"].(map[string]any)
	assert.Equal(t, "paid", data["paymentStatus"])
	assert.Contains(t, data, "shipmentDetails")

	bad := strings.Replace(string(body), "pay_1", "pay_2", 1)
	status, res = doRequest(t, app, "POST", "/api/payment/verify-payment", bad, asUser1)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid payment signature. Payment verification failed.", res["message"])
}

func TestPaymentWebhookRoute_ChecksRawBodySignature(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.CreateOrder(context.Background(), 1, createInput())
	require.NoError(t, err)
	app := makeAppWithPaymentHandler(NewHandler(f.svc))

	raw := string(webhookBody(t, "payment.captured", "pay_1", session.RazorpayOrderID))
	status, res := doRequest(t, app, "POST", "/payment/payment-webhook", raw, map[string]string{
		"x-razorpay-signature": razorpay.Sign(webhookSecret, []byte(raw+" ")),
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid signature", res["message"])

	status, res = doRequest(t, app, "POST", "/payment/payment-webhook", raw, map[string]string{
		"x-razorpay-signature": razorpay.Sign(webhookSecret, []byte(raw)),
	})
	require.Equal(t, fiber.StatusOK, status, res)
	assert.Equal(t, "Webhook processed successfully", res["message"])
}

func TestCaptureRoute_GatewayRejectionIs400(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.CreateOrder(context.Background(), 1, createInput())
	require.NoError(t, err)
	f.gateway.captureErr = &razorpay.Error{Op: "capture payment", StatusCode: 400, Description: "amount mismatch"}
	app := makeAppWithPaymentHandler(NewHandler(f.svc))

	status, res := doRequest(t, app, "POST", "/api/payment/capture-payment",
		`{"paymentId":"pay_1","orderId":"`+session.OrderID+`"}`, asUser1)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Payment capture failed", res["message"])
	assert.Equal(t, "amount mismatch", res["details"])
}

func TestStatusAndListRoutes(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.CreateOrder(context.Background(), 1, createInput())
	require.NoError(t, err)
	app := makeAppWithPaymentHandler(NewHandler(f.svc))

	status, res := doRequest(t, app, "GET", "/api/payment/payment-status/"+session.RazorpayOrderID, "", asUser1)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, session.TransactionID, res["data"].(map[string]any)["transactionId"])

	status, _ = doRequest(t, app, "GET", "/api/payment/payment-status/nope", "", asUser1)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, res = doRequest(t, app, "GET", "/api/payment/user-payments?page=1&limit=5", "", asUser1)
	require.Equal(t, fiber.StatusOK, status)
	data := res["data"].(map[string]any)
	assert.EqualValues(t, 1, data["totalPayments"])
	assert.EqualValues(t, 1, data["currentPage"])
}
