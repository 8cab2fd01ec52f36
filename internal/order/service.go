package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/shiprocket"
	"github.com/wichananm65/storefront-backend/internal/user"
)

var (
	ErrMissingFields       = errors.New("Missing required fields: items, shippingAddress, billingAddress, total")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrMissingPaymentProof = errors.New("Missing payment verification data: razorpay_payment_id, razorpay_order_id, razorpay_signature")
	ErrInvalidSignature    = errors.New("Invalid payment signature. Payment verification failed.")
	ErrPaymentAlreadyUsed  = errors.New("This payment has already been used for another order")
	ErrOrderIDRequired     = errors.New("Order ID is required")
	ErrAlreadyCancelled    = errors.New("Order is already cancelled")
	ErrNoShiprocketOrder   = errors.New("Order does not have a Shiprocket Order ID")
	ErrNoShipment          = errors.New("No shipment ID available for tracking")
	ErrInvalidShipmentID   = errors.New("Invalid shipment ID")
)

// Shipper is the subset of the Shiprocket client the workflow needs.
type Shipper interface {
	CreateOrder(ctx context.Context, req shiprocket.OrderRequest) (shiprocket.CreateOrderResponse, error)
	TrackShipment(ctx context.Context, shipmentID string) (shiprocket.TrackingResponse, error)
	CancelOrder(ctx context.Context, shipmentID string) (shiprocket.CancelResponse, error)
	CheckAndUpdateOrderDetails(ctx context.Context, shiprocketOrderID string) (shiprocket.OrderDetails, error)
	GetCourierList(ctx context.Context) (shiprocket.Serviceability, error)
	CalculateShipping(ctx context.Context, pickupPincode, deliveryPincode string, weight float64) (shiprocket.Serviceability, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int) (user.User, error)
	UpsertHistoryEntry(ctx context.Context, userID int, entry user.HistoryEntry) error
}

type CartClearer interface {
	ClearCart(ctx context.Context, userID int) error
}

type PaymentVerifier interface {
	VerifyPayment(orderID, paymentID, signature string) bool
}

type Deps struct {
	Shipper        Shipper
	Users          UserStore
	Carts          CartClearer
	Verifier       PaymentVerifier
	PickupLocation string
	Logger         *slog.Logger
}

// Service runs the order workflow: checkout, shipment creation, webhook and
// poll reconciliation, and cancellation.
type Service struct {
	repo           Repository
	shipper        Shipper
	users          UserStore
	carts          CartClearer
	verifier       PaymentVerifier
	pickupLocation string
	logger         *slog.Logger
	now            func() time.Time
	locks          keyedMutex
}

func NewService(repo Repository, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.PickupLocation == "" {
		deps.PickupLocation = "warehouse"
	}
	return &Service{
		repo:           repo,
		shipper:        deps.Shipper,
		users:          deps.Users,
		carts:          deps.Carts,
		verifier:       deps.Verifier,
		pickupLocation: deps.PickupLocation,
		logger:         deps.Logger,
		now:            time.Now,
	}
}

type CheckoutInput struct {
	Items           []Item           `json:"items" validate:"dive"`
	ShippingAddress *address.Address `json:"shippingAddress"`
	BillingAddress  *address.Address `json:"billingAddress"`
	Subtotal        float64          `json:"subtotal" validate:"gte=0"`
	ShippingCost    float64          `json:"shippingCost" validate:"gte=0"`
	Tax             float64          `json:"tax" validate:"gte=0"`
	Total           float64          `json:"total" validate:"gt=0"`
	PaymentMethod   string           `json:"paymentMethod"`
	Notes           string           `json:"notes"`
}

func (in CheckoutInput) validate() error {
	if len(in.Items) == 0 || in.ShippingAddress == nil || in.BillingAddress == nil || in.Total == 0 {
		return ErrMissingFields
	}
	if err := httpx.Validate(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	return nil
}

// PaymentProof is what the checkout widget returns after a payment.
type PaymentProof struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (p PaymentProof) complete() bool {
	return p.RazorpayOrderID != "" && p.RazorpayPaymentID != "" && p.RazorpaySignature != ""
}

// Checkout creates an unpaid order and attempts to create its shipment.
func (s *Service) Checkout(ctx context.Context, userID int, in CheckoutInput) (Order, error) {
	if err := in.validate(); err != nil {
		return Order{}, err
	}
	return s.place(ctx, userID, in, "", nil)
}

// CheckoutWithPayment verifies the payment signature before anything is
// persisted, then places a paid order.
func (s *Service) CheckoutWithPayment(ctx context.Context, userID int, in CheckoutInput, proof PaymentProof) (Order, error) {
	if err := in.validate(); err != nil {
		return Order{}, err
	}
	if !proof.complete() {
		return Order{}, ErrMissingPaymentProof
	}
	if s.verifier == nil || !s.verifier.VerifyPayment(proof.RazorpayOrderID, proof.RazorpayPaymentID, proof.RazorpaySignature) {
		return Order{}, ErrInvalidSignature
	}
	note := fmt.Sprintf("Payment %s verified for gateway order %s", proof.RazorpayPaymentID, proof.RazorpayOrderID)
	return s.placePaid(ctx, userID, in, proof.RazorpayPaymentID, note)
}

// PlacePaid places an order for a payment whose signature the caller has
// already verified. A payment places one order: repeating the call for the
// same user returns that order, and another user gets ErrPaymentAlreadyUsed.
func (s *Service) PlacePaid(ctx context.Context, userID int, in CheckoutInput, paymentID, paymentNote string) (Order, error) {
	if err := in.validate(); err != nil {
		return Order{}, err
	}
	if paymentID == "" {
		return Order{}, ErrMissingPaymentProof
	}
	return s.placePaid(ctx, userID, in, paymentID, paymentNote)
}

func (s *Service) placePaid(ctx context.Context, userID int, in CheckoutInput, paymentID, note string) (Order, error) {
	unlock := s.locks.Lock("payment:" + paymentID)
	defer unlock()

	existing, err := s.repo.GetByRazorpayPaymentID(ctx, paymentID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Order{}, err
	case existing.UserID != userID:
		s.logger.Warn("payment reused by another user", "razorpayPaymentId", paymentID, "orderId", existing.OrderID, "userId", userID)
		return Order{}, ErrPaymentAlreadyUsed
	default:
		s.logger.Info("payment already placed an order", "razorpayPaymentId", paymentID, "orderId", existing.OrderID)
		return existing, nil
	}
	return s.place(ctx, userID, in, paymentID, &Note{Event: EventPayment, Detail: note})
}

// place creates the order and its shipment. A non-empty paymentID marks the
// order paid.
func (s *Service) place(ctx context.Context, userID int, in CheckoutInput, paymentID string, extra *Note) (Order, error) {
	paymentStatus := PaymentPending
	if paymentID != "" {
		paymentStatus = PaymentPaid
	}
	customer, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Order{}, err
	}

	now := s.now().UTC()
	ord := Order{
		OrderID:         NewOrderID(now),
		UserID:          userID,
		Items:           in.Items,
		ShippingAddress: *in.ShippingAddress,
		BillingAddress:  *in.BillingAddress,
		Subtotal:        in.Subtotal,
		ShippingCost:    in.ShippingCost,
		Tax:             in.Tax,
		Total:           in.Total,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   paymentStatus,
		OrderStatus:     StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if ord.PaymentMethod == "" {
		ord.PaymentMethod = defaultPaymentMethod
	}
	if paymentID != "" {
		ord.RazorpayPaymentID = paymentID
		ord.OrderStatus = StatusConfirmed
	}
	if note := strings.TrimSpace(in.Notes); note != "" {
		ord.addNote(now, EventCustomer, note)
	}
	if extra != nil {
		ord.addNote(now, extra.Event, extra.Detail)
	}
	if ord.totalsMismatch() {
		s.logger.Warn("order total does not match its parts",
			"orderId", ord.OrderID, "subtotal", ord.Subtotal, "shippingCost", ord.ShippingCost, "tax", ord.Tax, "total", ord.Total)
	}

	ord, err = s.repo.Create(ctx, ord)
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order created", "orderId", ord.OrderID, "userId", userID, "paymentStatus", paymentStatus)

	s.createShipment(ctx, &ord, customer)
	ord.OrderStatus = StatusConfirmed
	ord.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, ord); err != nil {
		s.logger.Error("save order after shipment creation",
			"orderId", ord.OrderID, "shiprocketOrderId", ord.ShiprocketOrderID, "shipmentId", ord.ShiprocketShipmentID, "error", err)
		return Order{}, fmt.Errorf("save order %s (shiprocket order %q, shipment %q): %w",
			ord.OrderID, ord.ShiprocketOrderID, ord.ShiprocketShipmentID, err)
	}

	s.projectHistory(ctx, ord)
	if s.carts != nil {
		if err := s.carts.ClearCart(ctx, userID); err != nil {
			s.logger.Error("clear cart after checkout", "userId", userID, "orderId", ord.OrderID, "error", err)
		}
	}
	return ord, nil
}

// createShipment never fails the checkout. Provider problems become notes.
func (s *Service) createShipment(ctx context.Context, ord *Order, customer user.User) {
	if s.shipper == nil {
		ord.addNote(s.now().UTC(), EventShipmentFailed, "Shiprocket integration failed: shipping provider not configured")
		return
	}

	resp, err := s.shipper.CreateOrder(ctx, s.shipmentRequest(*ord, customer))
	now := s.now().UTC()
	if err != nil {
		s.logger.Error("shiprocket order creation failed", "orderId", ord.OrderID, "error", err)
		ord.addNote(now, EventShipmentFailed, "Shiprocket integration failed: "+err.Error())
		return
	}
	if strings.Contains(resp.Message, "Wrong Pickup location") || (resp.OrderID == "" && resp.ShipmentID == "") {
		msg := resp.Message
		if msg == "" {
			msg = "Unknown error"
		}
		s.logger.Warn("shiprocket rejected order", "orderId", ord.OrderID, "message", msg)
		ord.addNote(now, EventShipmentFailed, "Shiprocket order creation failed: "+msg)
		return
	}

	ord.apply(ShipmentUpdate{
		ShiprocketOrderID: resp.OrderID.String(),
		ShipmentID:        resp.ShipmentID.String(),
		AWBCode:           resp.AWBCode.String(),
		CourierName:       resp.CourierName,
		TrackingURL:       resp.TrackingURL,
	})
	s.logger.Info("shiprocket order created",
		"orderId", ord.OrderID, "shiprocketOrderId", ord.ShiprocketOrderID, "shipmentId", ord.ShiprocketShipmentID)
}

func (s *Service) shipmentRequest(ord Order, customer user.User) shiprocket.OrderRequest {
	items := make([]shiprocket.OrderItem, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, shiprocket.OrderItem{
			Name:         it.Title,
			SKU:          it.ProductID,
			Units:        it.Quantity,
			SellingPrice: it.Price,
		})
	}
	name := customer.FullName()
	bill, ship := ord.BillingAddress, ord.ShippingAddress
	return shiprocket.OrderRequest{
		OrderID:        ord.OrderID,
		OrderDate:      ord.CreatedAt.Format("2006-01-02"),
		PickupLocation: s.pickupLocation,

		BillingCustomerName: name,
		BillingLastName:     customer.LastName,
		BillingAddress:      bill.HouseName,
		BillingAddress2:     bill.StreetArea,
		BillingCity:         bill.City,
		BillingPincode:      bill.Pincode,
		BillingState:        bill.State,
		BillingCountry:      bill.Country,
		BillingEmail:        customer.Email,
		BillingPhone:        customer.Phone,

		ShippingIsBilling:    sameAddress(bill, ship),
		ShippingCustomerName: name,
		ShippingLastName:     customer.LastName,
		ShippingAddress:      ship.HouseName,
		ShippingAddress2:     ship.StreetArea,
		ShippingCity:         ship.City,
		ShippingPincode:      ship.Pincode,
		ShippingState:        ship.State,
		ShippingCountry:      ship.Country,
		ShippingEmail:        customer.Email,
		ShippingPhone:        customer.Phone,

		OrderItems:    items,
		PaymentMethod: "Prepaid",
		SubTotal:      ord.Subtotal,
	}
}

func sameAddress(a, b address.Address) bool {
	return a.HouseName == b.HouseName && a.StreetArea == b.StreetArea && a.City == b.City &&
		a.State == b.State && a.Country == b.Country && a.Pincode == b.Pincode
}

// projectHistory is best effort; the order is already committed.
func (s *Service) projectHistory(ctx context.Context, ord Order) {
	if s.users == nil {
		return
	}
	if err := s.users.UpsertHistoryEntry(ctx, ord.UserID, ord.HistoryEntry()); err != nil {
		s.logger.Error("upsert order history", "userId", ord.UserID, "orderId", ord.OrderID, "error", err)
	}
}

func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// GetForUser returns ErrNotFound for orders owned by someone else.
func (s *Service) GetForUser(ctx context.Context, userID int, orderID string) (Order, error) {
	ord, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if ord.UserID != userID {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

func (s *Service) ListForUser(ctx context.Context, userID int) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListByOrderIDs(ctx context.Context, ids []string) ([]Order, error) {
	return s.repo.ListByOrderIDs(ctx, ids)
}

func (s *Service) ListPendingTracking(ctx context.Context, afterID int64, limit int) ([]Order, error) {
	return s.repo.ListPendingTracking(ctx, afterID, limit)
}

// ApplyShipmentUpdate reloads the order under its lock, applies u and saves
// only when something changed. It returns the change labels.
func (s *Service) ApplyShipmentUpdate(ctx context.Context, orderID string, u ShipmentUpdate, event string) (Order, []string, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	ord, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	before := ord.OrderStatus
	changes := ord.reconcile(u, event, s.now().UTC())
	if len(changes) == 0 {
		return ord, nil, nil
	}
	if err := s.repo.Save(ctx, ord); err != nil {
		return Order{}, nil, err
	}
	s.logger.Info("order reconciled", "orderId", orderID, "source", event, "changes", changes)
	if ord.OrderStatus != before {
		s.projectHistory(ctx, ord)
	}
	return ord, changes, nil
}

type WebhookResult struct {
	Order   Order
	Updated bool
	Updates []string
}

// ApplyWebhook applies a provider push. Replaying the same payload changes
// nothing and reports Updated false.
func (s *Service) ApplyWebhook(ctx context.Context, u ShipmentUpdate) (WebhookResult, error) {
	if strings.TrimSpace(u.ShiprocketOrderID) == "" {
		return WebhookResult{}, ErrOrderIDRequired
	}
	ord, err := s.repo.GetByShiprocketOrderID(ctx, u.ShiprocketOrderID)
	if err != nil {
		return WebhookResult{}, err
	}
	ord, changes, err := s.ApplyShipmentUpdate(ctx, ord.OrderID, u, EventWebhook)
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Order: ord, Updated: len(changes) > 0, Updates: changes}, nil
}

// CheckShiprocketUpdates pulls the provider's order details and reconciles.
// Provider errors are returned unchanged for classification.
func (s *Service) CheckShiprocketUpdates(ctx context.Context, userID int, orderID string) (WebhookResult, error) {
	ord, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return WebhookResult{}, err
	}
	if ord.ShiprocketOrderID == "" {
		return WebhookResult{Order: ord}, ErrNoShiprocketOrder
	}
	if s.shipper == nil {
		return WebhookResult{Order: ord}, shiprocket.ErrNotConfigured
	}
	details, err := s.shipper.CheckAndUpdateOrderDetails(ctx, ord.ShiprocketOrderID)
	if err != nil {
		return WebhookResult{Order: ord}, err
	}
	ord, changes, err := s.ApplyShipmentUpdate(ctx, orderID, detailsUpdate(details), EventOrderDetails)
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Order: ord, Updated: len(changes) > 0, Updates: changes}, nil
}

func detailsUpdate(d shiprocket.OrderDetails) ShipmentUpdate {
	return ShipmentUpdate{
		ShipmentID:  d.ShipmentID.String(),
		AWBCode:     d.AWBCode.String(),
		CourierName: d.CourierName,
		TrackingURL: d.TrackingURL,
		Status:      d.Status,
	}
}

// ShipmentDetailsView is the shipment-details response.
type ShipmentDetailsView struct {
	OrderID string `json:"orderId"`
	ShipmentDetails
	OrderStatus    Status                   `json:"orderStatus"`
	LastChecked    *time.Time               `json:"lastChecked"`
	ShiprocketData *shiprocket.OrderDetails `json:"shiprocketData"`
}

// ShipmentDetails refreshes from the provider on a best-effort basis and
// falls back to the stored fields.
func (s *Service) ShipmentDetails(ctx context.Context, userID int, orderID string) (ShipmentDetailsView, error) {
	ord, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return ShipmentDetailsView{}, err
	}
	if ord.ShiprocketOrderID == "" {
		return ShipmentDetailsView{}, ErrNoShiprocketOrder
	}

	view := ShipmentDetailsView{}
	if s.shipper != nil {
		details, err := s.shipper.CheckAndUpdateOrderDetails(ctx, ord.ShiprocketOrderID)
		if err != nil {
			s.logger.Warn("could not fetch latest shiprocket details", "orderId", orderID, "error", err)
		} else {
			checked := s.now().UTC()
			view.LastChecked = &checked
			view.ShiprocketData = &details
			if updated, _, err := s.ApplyShipmentUpdate(ctx, orderID, detailsUpdate(details), EventOrderDetails); err == nil {
				ord = updated
			} else {
				s.logger.Error("apply shiprocket details", "orderId", orderID, "error", err)
			}
		}
	}

	view.OrderID = ord.OrderID
	view.ShipmentDetails = ord.ShipmentDetails()
	view.OrderStatus = ord.OrderStatus
	return view, nil
}

// TrackShipment proxies a tracking lookup for a shipment id.
func (s *Service) TrackShipment(ctx context.Context, shipmentID string) (shiprocket.TrackingResponse, error) {
	switch strings.TrimSpace(shipmentID) {
	case "", "undefined", "null":
		return nil, ErrInvalidShipmentID
	}
	if s.shipper == nil {
		return nil, shiprocket.ErrNotConfigured
	}
	return s.shipper.TrackShipment(ctx, shipmentID)
}

// Cancel marks the order cancelled and asks the provider to cancel the
// shipment. Provider failure is recorded but does not block cancellation.
func (s *Service) Cancel(ctx context.Context, userID int, orderID string) (Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	ord, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return Order{}, err
	}
	if ord.OrderStatus == StatusCancelled {
		return Order{}, ErrAlreadyCancelled
	}

	if ord.ShiprocketShipmentID != "" && s.shipper != nil {
		if _, err := s.shipper.CancelOrder(ctx, ord.ShiprocketShipmentID); err != nil {
			s.logger.Error("shiprocket cancellation failed", "orderId", orderID, "error", err)
			ord.addNote(s.now().UTC(), EventCancelled, "Shiprocket cancellation failed: "+err.Error())
		}
	}

	now := s.now().UTC()
	ord.OrderStatus = StatusCancelled
	ord.UpdatedAt = now
	ord.addNote(now, EventCancelled, "Order cancelled by customer")
	if err := s.repo.Save(ctx, ord); err != nil {
		return Order{}, err
	}
	s.projectHistory(ctx, ord)
	return ord, nil
}

func (s *Service) CourierList(ctx context.Context) (shiprocket.Serviceability, error) {
	if s.shipper == nil {
		return shiprocket.Serviceability{}, shiprocket.ErrNotConfigured
	}
	return s.shipper.GetCourierList(ctx)
}

func (s *Service) CalculateShipping(ctx context.Context, pickupPincode, deliveryPincode string, weight float64) (shiprocket.Serviceability, error) {
	if s.shipper == nil {
		return shiprocket.Serviceability{}, shiprocket.ErrNotConfigured
	}
	return s.shipper.CalculateShipping(ctx, pickupPincode, deliveryPincode, weight)
}

// SetPaymentStatus records a gateway-reported payment status on an order.
func (s *Service) SetPaymentStatus(ctx context.Context, orderID, status, detail string) (Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	ord, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if ord.PaymentStatus == status {
		return ord, nil
	}
	now := s.now().UTC()
	ord.PaymentStatus = status
	ord.UpdatedAt = now
	ord.addNote(now, EventPayment, detail)
	if err := s.repo.Save(ctx, ord); err != nil {
		return Order{}, err
	}
	s.projectHistory(ctx, ord)
	return ord, nil
}
