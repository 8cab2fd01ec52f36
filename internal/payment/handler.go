package payment

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/razorpay"
	"github.com/wichananm65/storefront-backend/internal/user"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/payment", "/payment"} {
		app.Post(prefix+"/payment-webhook", h.webhook)
	}
}

// PublicPath reports whether path is served without a token.
func PublicPath(path string) bool {
	return path == "/api/payment/payment-webhook" || path == "/payment/payment-webhook"
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/payment", "/payment"} {
		app.Post(prefix+"/create-order", h.createOrder)
		app.Post(prefix+"/capture-payment", h.capture)
		app.Post(prefix+"/verify-payment", h.verify)
		app.Post(prefix+"/refund-payment", h.refund)
		app.Get(prefix+"/payment-status/:orderId", h.status)
		app.Get(prefix+"/user-payments", h.userPayments)
	}
}

func (h *Handler) createOrder(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(CreateOrderInput)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	session, err := h.service.CreateOrder(c.UserContext(), userID, *payload)
	if err != nil {
		return h.fail(c, err, "Failed to create order")
	}
	return httpx.Success(c, fiber.StatusCreated, fiber.Map{
		"success": true,
		"message": "Order created successfully",
		"data":    session,
	})
}

func (h *Handler) capture(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(CaptureInput)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	p, already, err := h.service.Capture(c.UserContext(), userID, *payload)
	if err != nil {
		return h.fail(c, err, "Payment capture failed")
	}
	message := "Payment captured successfully"
	if already {
		message = "Payment already captured"
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"success": true,
		"message": message,
		"data": fiber.Map{
			"paymentId":     p.PaymentID,
			"orderId":       p.OrderID,
			"transactionId": p.TransactionID,
			"paymentStatus": p.PaymentStatus,
			"paymentMethod": p.PaymentMethod,
			"amount":        p.Amount,
			"orderTotal":    p.OrderTotal,
		},
	})
}

func (h *Handler) verify(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(VerifyInput)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	ord, err := h.service.Verify(c.UserContext(), userID, *payload)
	if err != nil {
		return h.fail(c, err, "Payment verification failed")
	}
	return httpx.Success(c, fiber.StatusCreated, fiber.Map{
		"success": true,
		"message": "Payment verified and order created successfully",
		"data":    ord.View(),
	})
}

func (h *Handler) webhook(c *fiber.Ctx) error {
	err := h.service.HandleWebhook(c.UserContext(), c.Body(), c.Get("x-razorpay-signature"))
	if err != nil {
		return h.fail(c, err, "Webhook processing failed")
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"success": true, "message": "Webhook processed successfully"})
}

func (h *Handler) refund(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(RefundInput)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	p, err := h.service.Refund(c.UserContext(), userID, *payload)
	if err != nil {
		return h.fail(c, err, "Refund failed")
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"success": true,
		"message": "Payment refunded successfully",
		"data": fiber.Map{
			"refundId":      p.RefundID,
			"paymentId":     p.PaymentID,
			"transactionId": p.TransactionID,
			"amount":        p.RefundAmount,
			"paymentStatus": p.PaymentStatus,
		},
	})
}

func (h *Handler) status(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	view, err := h.service.Status(c.UserContext(), userID, c.Params("orderId"))
	if err != nil {
		return h.fail(c, err, "Failed to get payment status")
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"success": true, "data": view})
}

func (h *Handler) userPayments(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	page, err := h.service.UserPayments(c.UserContext(), userID, c.QueryInt("page", 1), c.QueryInt("limit", defaultPageSize))
	if err != nil {
		return h.fail(c, err, "Failed to get user payments")
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"success": true, "data": page})
}

// clientErrors are answered with 400 and their own text as the message.
var clientErrors = []error{
	ErrMissingFields, ErrAmountTooLow, ErrEmptyItems, ErrMissingIDs, ErrPaymentIDRequired,
	ErrNotCaptured, ErrInvalidWebhook, order.ErrMissingPaymentProof, order.ErrInvalidSignature,
	order.ErrMissingFields,
}

// fail maps service errors; gatewayMessage is used for gateway rejections.
func (h *Handler) fail(c *fiber.Ctx, err error, gatewayMessage string) error {
	for _, sentinel := range clientErrors {
		if errors.Is(err, sentinel) {
			return httpx.Error(c, fiber.StatusBadRequest, sentinel.Error(), nil)
		}
	}
	switch {
	case errors.Is(err, ErrUnavailable), errors.Is(err, razorpay.ErrNotConfigured):
		return httpx.Error(c, fiber.StatusServiceUnavailable, ErrUnavailable.Error(), nil)
	case errors.Is(err, ErrInvalidItems), errors.Is(err, ErrInvalidPayload), errors.Is(err, order.ErrInvalidOrder):
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request data", err)
	case errors.Is(err, order.ErrPaymentAlreadyUsed):
		return httpx.Error(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "Payment not found", nil)
	case errors.Is(err, order.ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "Order not found", nil)
	case errors.Is(err, user.ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "User not found", nil)
	}

	var gwErr *razorpay.Error
	if errors.As(err, &gwErr) && gwErr.StatusCode < fiber.StatusInternalServerError {
		return httpx.Error(c, fiber.StatusBadRequest, gatewayMessage, errors.New(gwErr.Description))
	}
	return httpx.Error(c, fiber.StatusInternalServerError, "Internal server error", err)
}
