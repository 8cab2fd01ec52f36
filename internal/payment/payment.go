// Package payment implements the gateway-first checkout: a Razorpay order is
// opened before the customer pays and the store order is created once the
// payment is verified.
package payment

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/user"
)

const (
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

const (
	WebhookReceived = "received"
	WebhookVerified = "verified"
	WebhookFailed   = "failed"
)

const (
	defaultCurrency = "INR"
	minAmount       = 100
	defaultPageSize = 10
)

// Item is the order line snapshot taken when the gateway order is opened.
type Item struct {
	ProductID   string  `json:"productId" validate:"required"`
	ProductName string  `json:"productName"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity" validate:"gte=1"`
	Price       float64 `json:"price" validate:"gte=0"`
	Img         string  `json:"img"`
}

func (it Item) normalized() Item {
	switch {
	case it.ProductName == "" && it.Title == "":
		it.ProductName, it.Title = "Product", "Product"
	case it.ProductName == "":
		it.ProductName = it.Title
	case it.Title == "":
		it.Title = it.ProductName
	}
	return it
}

type Payment struct {
	ID              int64  `json:"id"`
	TransactionID   string `json:"transactionId"`
	PaymentID       string `json:"paymentId"`
	RazorpayOrderID string `json:"razorpayOrderId"`
	OrderID         string `json:"orderId"`
	LinkedOrderID   string `json:"linkedOrderId,omitempty"`
	UserID          int    `json:"userId"`

	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod"`

	OrderItems       []Item            `json:"orderItems"`
	ShippingAddress  *address.Address  `json:"shippingAddress"`
	BillingAddress   *address.Address  `json:"billingAddress"`
	OrderTotal       float64           `json:"orderTotal"`
	CouponCode       string            `json:"couponCode"`
	RewardPointsUsed int               `json:"rewardPointsUsed"`
	Notes            map[string]string `json:"notes"`

	WebhookStatus     string `json:"webhookStatus"`
	SignatureValid    bool   `json:"signatureValid"`
	RazorpaySignature string `json:"-"`
	ErrorCode         string `json:"errorCode,omitempty"`
	ErrorDescription  string `json:"errorDescription,omitempty"`

	RefundID     string     `json:"refundId,omitempty"`
	RefundAmount int64      `json:"refundAmount,omitempty"`
	CapturedAt   *time.Time `json:"capturedAt"`
	RefundedAt   *time.Time `json:"refundedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AmountRupees converts the paise amount to rupees.
func (p Payment) AmountRupees() decimal.Decimal {
	return decimal.New(p.Amount, -2)
}

// HistoryEntry projects an unlinked payment onto the owner's order history.
// Linked payments are projected through their order instead.
func (p Payment) HistoryEntry() user.HistoryEntry {
	items := make([]user.HistoryItem, 0, len(p.OrderItems))
	for _, it := range p.OrderItems {
		it = it.normalized()
		items = append(items, user.HistoryItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Img:         it.Img,
		})
	}
	return user.HistoryEntry{
		OrderID:       p.OrderID,
		OrderDate:     p.CreatedAt,
		OrderAmount:   p.OrderTotal,
		OrderStatus:   "pending",
		PaymentStatus: p.PaymentStatus,
		PaymentMethod: p.PaymentMethod,
		Items:         items,
	}
}

// View is a payment as listed for its owner, with the linked order's status
// when one exists.
type View struct {
	Payment
	AmountInRupees string `json:"amountInRupees"`
	OrderStatus    string `json:"orderStatus,omitempty"`
}

func (p Payment) View() View {
	return View{Payment: p, AmountInRupees: p.AmountRupees().StringFixed(2)}
}

func newTransactionID() string {
	return "txn_" + uuid.NewString()
}

// newReference returns the client-facing "order_<ms>_<rand>" reference.
func newReference(now time.Time) string {
	return "order_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatUint(rand.Uint64N(1<<40), 36)
}
