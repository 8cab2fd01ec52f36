package order

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/shiprocket"
	"github.com/wichananm65/storefront-backend/internal/user"
)

// RefreshResult is the outcome of a single-order tracking refresh.
type RefreshResult struct {
	Success bool            `json:"success"`
	Updated bool            `json:"updated"`
	Order   TrackingSummary `json:"order"`
}

// TrackingController is the periodic updater as seen by the HTTP layer.
type TrackingController interface {
	Start()
	Stop()
	Running() bool
	RefreshOrder(ctx context.Context, orderID string) (RefreshResult, error)
}

// Handler exposes checkout, order queries, shipment reconciliation and the
// shipping provider proxies.
type Handler struct {
	service      *Service
	tracker      TrackingController
	webhookToken string
}

// NewHandler builds the handler. An empty webhookToken leaves the shipment
// webhook unauthenticated.
func NewHandler(s *Service, tracker TrackingController, webhookToken string) *Handler {
	return &Handler{service: s, tracker: tracker, webhookToken: webhookToken}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/orders", "/orders"} {
		app.Post(prefix+"/shiprocket-webhook", h.shiprocketWebhook)
		app.Get(prefix+"/track/:shipmentId", h.trackShipment)
		app.Get(prefix+"/couriers/list", h.courierList)
		app.Post(prefix+"/calculate-shipping", h.calculateShipping)
	}
}

// PublicPath reports whether path is served without a token.
func PublicPath(path string) bool {
	for _, prefix := range []string{"/api/orders", "/orders"} {
		switch {
		case path == prefix+"/shiprocket-webhook",
			path == prefix+"/couriers/list",
			path == prefix+"/calculate-shipping",
			strings.HasPrefix(path, prefix+"/track/"):
			return true
		}
	}
	return false
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/orders", "/orders"} {
		app.Post(prefix+"/create", h.create)
		app.Post(prefix+"/create-with-payment", h.createWithPayment)
		app.Get(prefix+"/my-orders", h.myOrders)
		app.Post(prefix+"/cancel/:orderId", h.cancel)
		app.Post(prefix+"/refresh-tracking/:orderId", h.refreshTracking)
		app.Post(prefix+"/check-shiprocket-updates/:orderId", h.checkShiprocketUpdates)
		app.Post(prefix+"/start-tracking-updates", h.startTracking)
		app.Post(prefix+"/stop-tracking-updates", h.stopTracking)
		app.Get(prefix+"/:orderId/shipment-details", h.shipmentDetails)
		app.Get(prefix+"/:orderId", h.getOrder)
	}
}

func (h *Handler) create(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(CheckoutInput)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	ord, err := h.service.Checkout(c.UserContext(), userID, *payload)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusCreated, fiber.Map{
		"message": "Order created successfully",
		"data":    ord.View(),
	})
}

type paymentCheckoutRequest struct {
	CheckoutInput
	PaymentProof
}

func (h *Handler) createWithPayment(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(paymentCheckoutRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	ord, err := h.service.CheckoutWithPayment(c.UserContext(), userID, payload.CheckoutInput, payload.PaymentProof)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusCreated, fiber.Map{
		"message": "Order created successfully with payment verification",
		"data":    ord.View(),
	})
}

func (h *Handler) myOrders(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	orders, err := h.service.ListForUser(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, o.View())
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"results": len(views), "data": views})
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	ord, err := h.service.GetForUser(c.UserContext(), userID, c.Params("orderId"))
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"data": ord.View()})
}

func (h *Handler) shipmentDetails(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	view, err := h.service.ShipmentDetails(c.UserContext(), userID, c.Params("orderId"))
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"data": view})
}

func (h *Handler) cancel(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	ord, err := h.service.Cancel(c.UserContext(), userID, c.Params("orderId"))
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Order cancelled successfully",
		"data":    ord.View(),
	})
}

func (h *Handler) refreshTracking(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	orderID := c.Params("orderId")
	if _, err := h.service.GetForUser(c.UserContext(), userID, orderID); err != nil {
		return h.fail(c, err)
	}
	if h.tracker == nil {
		return httpx.Error(c, fiber.StatusServiceUnavailable, "Tracking updates are not available", nil)
	}

	res, err := h.tracker.RefreshOrder(c.UserContext(), orderID)
	if err != nil {
		return h.fail(c, err)
	}
	message := "No tracking changes"
	if res.Updated {
		message = "Tracking information updated"
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"message": message,
		"success": res.Success,
		"updated": res.Updated,
		"order":   res.Order,
	})
}

func (h *Handler) checkShiprocketUpdates(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	res, err := h.service.CheckShiprocketUpdates(c.UserContext(), userID, c.Params("orderId"))
	if err != nil {
		return h.fail(c, err)
	}
	message := "Order is up to date"
	if res.Updated {
		message = "Order updated from Shiprocket"
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"message": message,
		"updated": res.Updated,
		"updates": res.Updates,
		"order":   res.Order.Summary(),
	})
}

func (h *Handler) startTracking(c *fiber.Ctx) error {
	if h.tracker == nil {
		return httpx.Error(c, fiber.StatusServiceUnavailable, "Tracking updates are not available", nil)
	}
	h.tracker.Start()
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"message": "Tracking updates started", "running": h.tracker.Running()})
}

func (h *Handler) stopTracking(c *fiber.Ctx) error {
	if h.tracker == nil {
		return httpx.Error(c, fiber.StatusServiceUnavailable, "Tracking updates are not available", nil)
	}
	h.tracker.Stop()
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"message": "Tracking updates stopped", "running": h.tracker.Running()})
}

// shipmentWebhook is the provider push body. Identifiers arrive as numbers
// or strings.
type shipmentWebhook struct {
	OrderID     shiprocket.ID `json:"order_id"`
	ShipmentID  shiprocket.ID `json:"shipment_id"`
	AWBCode     shiprocket.ID `json:"awb_code"`
	CourierName string        `json:"courier_name"`
	TrackingURL string        `json:"tracking_url"`
	Status      string        `json:"status"`
}

func (h *Handler) shiprocketWebhook(c *fiber.Ctx) error {
	if h.webhookToken != "" {
		got := c.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookToken)) != 1 {
			return httpx.Error(c, fiber.StatusUnauthorized, "Invalid webhook token", nil)
		}
	}
	payload := new(shipmentWebhook)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid webhook payload", err)
	}

	res, err := h.service.ApplyWebhook(c.UserContext(), ShipmentUpdate{
		ShiprocketOrderID: payload.OrderID.String(),
		ShipmentID:        payload.ShipmentID.String(),
		AWBCode:           payload.AWBCode.String(),
		CourierName:       payload.CourierName,
		TrackingURL:       payload.TrackingURL,
		Status:            payload.Status,
	})
	switch {
	case errors.Is(err, ErrOrderIDRequired):
		return httpx.Error(c, fiber.StatusBadRequest, "Order ID is required", nil)
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":          "error",
			"message":         "Order not found",
			"searchedOrderId": payload.OrderID.String(),
		})
	case err != nil:
		return httpx.Error(c, fiber.StatusInternalServerError, "Failed to process webhook", err)
	}

	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Webhook processed successfully",
		"orderId": res.Order.OrderID,
		"updated": res.Updated,
		"updates": res.Updates,
	})
}

func (h *Handler) trackShipment(c *fiber.Ctx) error {
	tracking, err := h.service.TrackShipment(c.UserContext(), c.Params("shipmentId"))
	if err != nil {
		if shiprocket.KindOf(err) == shiprocket.KindInvalid {
			var apiErr *shiprocket.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusNotFound {
				return httpx.Error(c, fiber.StatusNotFound, "Shipment not found or AWB not yet assigned. Please try again later.", err)
			}
		}
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"data": tracking})
}

func (h *Handler) courierList(c *fiber.Ctx) error {
	couriers, err := h.service.CourierList(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"data": couriers.Data.AvailableCourierCompanies})
}

type shippingRequest struct {
	PickupPincode   string  `json:"pickupPincode" validate:"required"`
	DeliveryPincode string  `json:"deliveryPincode" validate:"required"`
	Weight          float64 `json:"weight" validate:"gte=0"`
}

func (h *Handler) calculateShipping(c *fiber.Ctx) error {
	payload := new(shippingRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := httpx.Validate(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Pickup pincode, delivery pincode, and weight are required", err)
	}
	if payload.Weight == 0 {
		payload.Weight = 0.5
	}

	rates, err := h.service.CalculateShipping(c.UserContext(), payload.PickupPincode, payload.DeliveryPincode, payload.Weight)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"data": rates.Data.AvailableCourierCompanies})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrMissingFields):
		return httpx.Error(c, fiber.StatusBadRequest, ErrMissingFields.Error(), nil)
	case errors.Is(err, ErrInvalidOrder):
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid order data", err)
	case errors.Is(err, ErrMissingPaymentProof), errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrAlreadyCancelled), errors.Is(err, ErrNoShiprocketOrder),
		errors.Is(err, ErrNoShipment), errors.Is(err, ErrInvalidShipmentID), errors.Is(err, ErrOrderIDRequired):
		return httpx.Error(c, fiber.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrPaymentAlreadyUsed):
		return httpx.Error(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "Order not found", nil)
	case errors.Is(err, user.ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "User not found", nil)
	case errors.Is(err, shiprocket.ErrNotConfigured):
		return httpx.Error(c, fiber.StatusServiceUnavailable, "Shipping provider is not configured", nil)
	}

	var apiErr *shiprocket.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind() {
		case shiprocket.KindInvalid:
			return httpx.Error(c, fiber.StatusBadRequest, "Invalid request to shipping provider", err)
		case shiprocket.KindRateLimited:
			return httpx.Error(c, fiber.StatusTooManyRequests, "Shipping provider rate limit reached. Please try again later.", err)
		case shiprocket.KindAuth:
			return httpx.Error(c, fiber.StatusInternalServerError, "Shipping provider authentication failed", err)
		default:
			return httpx.Error(c, fiber.StatusInternalServerError, "Shipping provider error (status "+strconv.Itoa(apiErr.StatusCode)+")", err)
		}
	}
	return httpx.Error(c, fiber.StatusInternalServerError, "Internal server error", err)
}
