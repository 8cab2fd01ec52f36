package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/razorpay"
	"github.com/wichananm65/storefront-backend/internal/user"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnavailable       = errors.New("Payment service is currently unavailable. Please try again later.")
	ErrMissingFields     = errors.New("Amount, orderItems, orderTotal, shippingAddress, and billingAddress are required")
	ErrAmountTooLow      = errors.New("Amount must be at least 100 paise (1 INR)")
	ErrEmptyItems        = errors.New("Order items array is required and cannot be empty")
	ErrInvalidItems      = errors.New("invalid order items")
	ErrMissingIDs        = errors.New("Payment ID and Order ID are required")
	ErrPaymentIDRequired = errors.New("Payment ID is required")
	ErrNotCaptured       = errors.New("Payment must be captured before refund")
	ErrInvalidWebhook    = errors.New("Invalid signature")
	ErrInvalidPayload    = errors.New("Invalid webhook payload")
)

type Gateway interface {
	Configured() bool
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (razorpay.Payment, error)
	CapturePayment(ctx context.Context, paymentID string, amount int64, currency string) (razorpay.Payment, error)
	Refund(ctx context.Context, paymentID string, amount int64, reason string) (razorpay.Refund, error)
}

type Verifier interface {
	VerifyPayment(orderID, paymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
}

// Orders is the part of the order workflow payments drive.
type Orders interface {
	PlacePaid(ctx context.Context, userID int, in order.CheckoutInput, paymentID, paymentNote string) (order.Order, error)
	Get(ctx context.Context, orderID string) (order.Order, error)
	ListByOrderIDs(ctx context.Context, ids []string) ([]order.Order, error)
	SetPaymentStatus(ctx context.Context, orderID, status, detail string) (order.Order, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int) (user.User, error)
	UpsertHistoryEntry(ctx context.Context, userID int, entry user.HistoryEntry) error
}

type Deps struct {
	Gateway  Gateway
	Verifier Verifier
	Orders   Orders
	Users    UserStore
	KeyID    string
	Logger   *slog.Logger
}

type Service struct {
	repo      Repository
	gateway   Gateway
	verifier  Verifier
	orders    Orders
	users     UserStore
	keyID     string
	logger    *slog.Logger
	now       func() time.Time
	verifying singleflight.Group
}

func NewService(repo Repository, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		gateway:  deps.Gateway,
		verifier: deps.Verifier,
		orders:   deps.Orders,
		users:    deps.Users,
		keyID:    deps.KeyID,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

func (s *Service) available() bool {
	return s.gateway != nil && s.gateway.Configured() && s.verifier != nil
}

type CreateOrderInput struct {
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Receipt          string            `json:"receipt"`
	OrderItems       []Item            `json:"orderItems" validate:"dive"`
	OrderTotal       float64           `json:"orderTotal"`
	ShippingAddress  *address.Address  `json:"shippingAddress"`
	BillingAddress   *address.Address  `json:"billingAddress"`
	CouponCode       string            `json:"couponCode"`
	RewardPointsUsed int               `json:"rewardPointsUsed" validate:"gte=0"`
	Notes            map[string]string `json:"notes"`
}

func (in CreateOrderInput) validate() error {
	if in.Amount == 0 || in.OrderItems == nil || in.OrderTotal == 0 || in.ShippingAddress == nil || in.BillingAddress == nil {
		return ErrMissingFields
	}
	if in.Amount < minAmount {
		return ErrAmountTooLow
	}
	if len(in.OrderItems) == 0 {
		return ErrEmptyItems
	}
	if err := httpx.Validate(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItems, err)
	}
	return nil
}

// CheckoutSession is what the client needs to open the payment widget.
type CheckoutSession struct {
	OrderID         string `json:"orderId"`
	TransactionID   string `json:"transactionId"`
	RazorpayOrderID string `json:"razorpayOrderId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Key             string `json:"key"`
}

// CreateOrder opens a gateway order with automatic capture and stores the
// order snapshot against it.
func (s *Service) CreateOrder(ctx context.Context, userID int, in CreateOrderInput) (CheckoutSession, error) {
	if !s.available() {
		return CheckoutSession{}, ErrUnavailable
	}
	if err := in.validate(); err != nil {
		return CheckoutSession{}, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return CheckoutSession{}, err
	}
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}

	now := s.now().UTC()
	p := Payment{
		TransactionID:    newTransactionID(),
		OrderID:          newReference(now),
		UserID:           userID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		PaymentStatus:    StatusPending,
		OrderTotal:       in.OrderTotal,
		ShippingAddress:  in.ShippingAddress,
		BillingAddress:   in.BillingAddress,
		CouponCode:       in.CouponCode,
		RewardPointsUsed: in.RewardPointsUsed,
		Notes:            map[string]string{},
		WebhookStatus:    WebhookReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, it := range in.OrderItems {
		p.OrderItems = append(p.OrderItems, it.normalized())
	}
	for k, v := range in.Notes {
		p.Notes[k] = v
	}
	p.Notes["couponCode"] = in.CouponCode
	p.Notes["rewardPointsUsed"] = strconv.Itoa(in.RewardPointsUsed)

	if p.AmountRupees().Sub(decimal.NewFromFloat(in.OrderTotal)).Abs().GreaterThan(decimal.New(1, -2)) {
		s.logger.Warn("payment amount does not match order total",
			"orderId", p.OrderID, "amountPaise", in.Amount, "orderTotal", in.OrderTotal)
	}

	receipt := in.Receipt
	if receipt == "" {
		receipt = p.OrderID
	}
	gwOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:         in.Amount,
		Currency:       in.Currency,
		Receipt:        receipt,
		PaymentCapture: 1,
		Notes:          p.Notes,
	})
	if err != nil {
		return CheckoutSession{}, err
	}
	p.RazorpayOrderID = gwOrder.ID

	if p, err = s.repo.Create(ctx, p); err != nil {
		return CheckoutSession{}, err
	}
	s.logger.Info("payment order created",
		"orderId", p.OrderID, "transactionId", p.TransactionID, "razorpayOrderId", p.RazorpayOrderID, "amount", p.Amount)

	return CheckoutSession{
		OrderID:         p.OrderID,
		TransactionID:   p.TransactionID,
		RazorpayOrderID: p.RazorpayOrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Key:             s.keyID,
	}, nil
}

type CaptureInput struct {
	PaymentID         string `json:"paymentId"`
	OrderID           string `json:"orderId"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// Capture captures a payment unless the gateway already did. The second
// return value reports the already-captured case.
func (s *Service) Capture(ctx context.Context, userID int, in CaptureInput) (Payment, bool, error) {
	paymentID := firstNonEmpty(in.PaymentID, in.RazorpayPaymentID)
	ref := firstNonEmpty(in.OrderID, in.RazorpayOrderID)
	if paymentID == "" || ref == "" {
		return Payment{}, false, ErrMissingIDs
	}
	p, err := s.owned(ctx, userID, ref)
	if err != nil {
		return Payment{}, false, err
	}
	if !s.available() {
		return Payment{}, false, ErrUnavailable
	}

	remote, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, false, err
	}
	already := remote.Status == StatusCaptured
	if !already {
		if remote, err = s.gateway.CapturePayment(ctx, paymentID, p.Amount, p.Currency); err != nil {
			return Payment{}, false, err
		}
	}

	now := s.now().UTC()
	p.PaymentStatus = StatusCaptured
	p.PaymentID = paymentID
	p.PaymentMethod = remote.Method
	p.CapturedAt = &now
	p.WebhookStatus = WebhookVerified
	if in.RazorpaySignature != "" {
		p.RazorpaySignature = in.RazorpaySignature
	}
	p.SignatureValid = in.RazorpaySignature != ""
	p.UpdatedAt = now
	if err := s.repo.Save(ctx, p); err != nil {
		return Payment{}, false, err
	}
	s.logger.Info("payment captured", "transactionId", p.TransactionID, "paymentId", paymentID, "alreadyCaptured", already)
	s.propagate(ctx, p, "Payment "+paymentID+" captured")
	return p, already, nil
}

// VerifyInput is the checkout body plus the widget's payment proof.
type VerifyInput struct {
	order.CheckoutInput
	order.PaymentProof
}

// Verify checks the payment signature and creates the paid order. Repeated
// calls for the same gateway order return the order created first.
func (s *Service) Verify(ctx context.Context, userID int, in VerifyInput) (order.Order, error) {
	if !s.available() {
		return order.Order{}, ErrUnavailable
	}
	proof := in.PaymentProof
	if proof.RazorpayOrderID == "" || proof.RazorpayPaymentID == "" || proof.RazorpaySignature == "" {
		return order.Order{}, order.ErrMissingPaymentProof
	}
	if !s.verifier.VerifyPayment(proof.RazorpayOrderID, proof.RazorpayPaymentID, proof.RazorpaySignature) {
		return order.Order{}, order.ErrInvalidSignature
	}

	// Callers share one placement, so it must not stop when the first
	// caller goes away.
	v, err, _ := s.verifying.Do(proof.RazorpayOrderID, func() (any, error) {
		return s.verifyOnce(context.WithoutCancel(ctx), userID, in)
	})
	if err != nil {
		return order.Order{}, err
	}
	return v.(order.Order), nil
}

func (s *Service) verifyOnce(ctx context.Context, userID int, in VerifyInput) (order.Order, error) {
	proof := in.PaymentProof
	p, err := s.repo.FindByReference(ctx, proof.RazorpayOrderID)
	found := err == nil
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return order.Order{}, err
	case p.UserID != userID:
		return order.Order{}, ErrNotFound
	case p.LinkedOrderID != "":
		return s.orders.Get(ctx, p.LinkedOrderID)
	}

	checkout := in.CheckoutInput
	if len(checkout.Items) == 0 && found {
		checkout = p.checkoutInput()
	}
	if checkout.PaymentMethod == "" {
		checkout.PaymentMethod = "razorpay"
	}

	note := fmt.Sprintf("Payment %s verified for gateway order %s", proof.RazorpayPaymentID, proof.RazorpayOrderID)
	ord, err := s.orders.PlacePaid(ctx, userID, checkout, proof.RazorpayPaymentID, note)
	if err != nil {
		return order.Order{}, err
	}
	if !found {
		s.logger.Warn("verified payment has no stored gateway order", "razorpayOrderId", proof.RazorpayOrderID, "orderId", ord.OrderID)
		return ord, nil
	}

	p.PaymentID = proof.RazorpayPaymentID
	p.PaymentStatus = StatusPaid
	p.RazorpaySignature = proof.RazorpaySignature
	p.SignatureValid = true
	p.WebhookStatus = WebhookVerified
	p.LinkedOrderID = ord.OrderID
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, p); err != nil {
		s.logger.Error("link payment to order", "transactionId", p.TransactionID, "orderId", ord.OrderID, "error", err)
	}
	return ord, nil
}

func (p Payment) checkoutInput() order.CheckoutInput {
	items := make([]order.Item, 0, len(p.OrderItems))
	for _, it := range p.OrderItems {
		it = it.normalized()
		items = append(items, order.Item{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Img:       it.Img,
		})
	}
	return order.CheckoutInput{
		Items:           items,
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		Subtotal:        p.OrderTotal,
		Total:           p.OrderTotal,
		PaymentMethod:   p.PaymentMethod,
	}
}

// HandleWebhook verifies a gateway push against the raw body and applies the
// event to the matching payment. Unknown events are acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.available() {
		return ErrUnavailable
	}
	var ev razorpay.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	valid := s.verifier.VerifyWebhook(body, signature)

	gwPayment := ev.Payload.Payment.Entity
	var (
		p   Payment
		err error
	)
	switch {
	case gwPayment.ID != "" || gwPayment.OrderID != "":
		p, err = s.repo.FindByGateway(ctx, gwPayment.ID, gwPayment.OrderID)
	case ev.Payload.Order.Entity.ID != "":
		p, err = s.repo.FindByReference(ctx, ev.Payload.Order.Entity.ID)
	default:
		err = ErrNotFound
	}
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if found {
		p.SignatureValid = valid
		p.WebhookStatus = WebhookVerified
		if !valid {
			p.WebhookStatus = WebhookFailed
		}
		p.UpdatedAt = s.now().UTC()
		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
	}
	if !valid {
		s.logger.Warn("payment webhook signature rejected", "event", ev.Event)
		return ErrInvalidWebhook
	}
	if !found {
		s.logger.Warn("payment webhook for unknown payment", "event", ev.Event, "paymentId", gwPayment.ID)
		return nil
	}

	now := s.now().UTC()
	switch ev.Event {
	case "payment.captured":
		p.PaymentStatus = StatusCaptured
		p.PaymentID = gwPayment.ID
		p.PaymentMethod = gwPayment.Method
		p.CapturedAt = &now
	case "payment.authorized":
		p.PaymentStatus = StatusAuthorized
		p.PaymentID = gwPayment.ID
		p.PaymentMethod = gwPayment.Method
	case "payment.failed":
		p.PaymentStatus = StatusFailed
		p.PaymentID = gwPayment.ID
		p.ErrorCode = gwPayment.ErrorCode
		p.ErrorDescription = gwPayment.ErrorDescription
	case "order.paid":
		p.PaymentStatus = StatusCaptured
		p.CapturedAt = &now
	default:
		s.logger.Info("ignoring payment webhook event", "event", ev.Event)
		return nil
	}
	p.UpdatedAt = now
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	s.logger.Info("payment webhook applied", "event", ev.Event, "transactionId", p.TransactionID, "status", p.PaymentStatus)
	s.propagate(ctx, p, "Gateway event "+ev.Event)
	return nil
}

type RefundInput struct {
	PaymentID string `json:"paymentId"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// Refund refunds a captured payment, in full unless Amount is set.
func (s *Service) Refund(ctx context.Context, userID int, in RefundInput) (Payment, error) {
	if in.PaymentID == "" {
		return Payment{}, ErrPaymentIDRequired
	}
	p, err := s.repo.GetByPaymentID(ctx, in.PaymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != userID {
		return Payment{}, ErrNotFound
	}
	if p.PaymentStatus != StatusCaptured {
		return Payment{}, ErrNotCaptured
	}
	if !s.available() {
		return Payment{}, ErrUnavailable
	}
	amount := in.Amount
	if amount <= 0 {
		amount = p.Amount
	}
	reason := in.Reason
	if reason == "" {
		reason = "Customer request"
	}

	refund, err := s.gateway.Refund(ctx, in.PaymentID, amount, reason)
	if err != nil {
		return Payment{}, err
	}
	now := s.now().UTC()
	p.PaymentStatus = StatusRefunded
	p.RefundID = refund.ID
	p.RefundAmount = amount
	p.RefundedAt = &now
	p.UpdatedAt = now
	if err := s.repo.Save(ctx, p); err != nil {
		return Payment{}, err
	}
	s.logger.Info("payment refunded", "transactionId", p.TransactionID, "refundId", refund.ID, "amount", amount)
	s.propagate(ctx, p, "Refund "+refund.ID+" processed")
	return p, nil
}

// Status looks a payment up by orderId, razorpayOrderId or transactionId.
func (s *Service) Status(ctx context.Context, userID int, ref string) (View, error) {
	p, err := s.owned(ctx, userID, ref)
	if err != nil {
		return View{}, err
	}
	view := p.View()
	if p.LinkedOrderID != "" {
		if ord, err := s.orders.Get(ctx, p.LinkedOrderID); err == nil {
			view.OrderStatus = string(ord.OrderStatus)
		}
	}
	return view, nil
}

type Page struct {
	Payments      []View `json:"payments"`
	TotalPages    int    `json:"totalPages"`
	CurrentPage   int    `json:"currentPage"`
	TotalPayments int    `json:"totalPayments"`
}

func (s *Service) UserPayments(ctx context.Context, userID, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > 100 {
		limit = 100
	}

	payments, total, err := s.repo.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return Page{}, err
	}

	var linked []string
	for _, p := range payments {
		if p.LinkedOrderID != "" {
			linked = append(linked, p.LinkedOrderID)
		}
	}
	statuses := map[string]string{}
	if len(linked) > 0 {
		orders, err := s.orders.ListByOrderIDs(ctx, linked)
		if err != nil {
			return Page{}, err
		}
		for _, o := range orders {
			statuses[o.OrderID] = string(o.OrderStatus)
		}
	}

	views := make([]View, 0, len(payments))
	for _, p := range payments {
		v := p.View()
		v.OrderStatus = statuses[p.LinkedOrderID]
		views = append(views, v)
	}
	return Page{
		Payments:      views,
		TotalPages:    (total + limit - 1) / limit,
		CurrentPage:   page,
		TotalPayments: total,
	}, nil
}

func (s *Service) owned(ctx context.Context, userID int, ref string) (Payment, error) {
	p, err := s.repo.FindByReference(ctx, ref)
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != userID {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

// propagate pushes a payment status change to the linked order, or to the
// owner's history when no order exists yet. Failures are logged.
func (s *Service) propagate(ctx context.Context, p Payment, detail string) {
	if p.LinkedOrderID != "" {
		if _, err := s.orders.SetPaymentStatus(ctx, p.LinkedOrderID, p.PaymentStatus, detail); err != nil {
			s.logger.Error("update linked order payment status", "orderId", p.LinkedOrderID, "error", err)
		}
		return
	}
	if s.users == nil {
		return
	}
	if err := s.users.UpsertHistoryEntry(ctx, p.UserID, p.HistoryEntry()); err != nil {
		s.logger.Error("upsert payment history", "userId", p.UserID, "orderId", p.OrderID, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
