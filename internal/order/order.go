package order

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/user"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

const (
	PaymentPending    = "pending"
	PaymentPaid       = "paid"
	PaymentFailed     = "failed"
	PaymentRefunded   = "refunded"
	PaymentAuthorized = "authorized"
	PaymentCaptured   = "captured"

	defaultPaymentMethod = "online"
)

// Note events.
const (
	EventCustomer       = "customer"
	EventShipmentFailed = "shipment_failed"
	EventWebhook        = "webhook"
	EventOrderDetails   = "order_details"
	EventTracking       = "tracking"
	EventCancelled      = "cancelled"
	EventPayment        = "payment"
)

type Item struct {
	ProductID string  `json:"productId" validate:"required"`
	Title     string  `json:"title" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	Price     float64 `json:"price" validate:"gte=0"`
	Img       string  `json:"img"`
}

// Note is one entry of an order's append-only audit trail.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
}

type Order struct {
	ID              int64           `json:"id"`
	OrderID         string          `json:"orderId"`
	UserID          int             `json:"userId"`
	Items           []Item          `json:"items"`
	ShippingAddress address.Address `json:"shippingAddress"`
	BillingAddress  address.Address `json:"billingAddress"`
	Subtotal        float64         `json:"subtotal"`
	ShippingCost    float64         `json:"shippingCost"`
	Tax             float64         `json:"tax"`
	Total           float64         `json:"total"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   string          `json:"paymentStatus"`
	OrderStatus     Status          `json:"orderStatus"`

	// RazorpayPaymentID is the gateway payment that paid for the order.
	// A payment pays for at most one order.
	RazorpayPaymentID string `json:"razorpayPaymentId,omitempty"`

	ShiprocketOrderID    string `json:"shiprocketOrderId"`
	ShiprocketShipmentID string `json:"shiprocketShipmentId"`
	CourierName          string `json:"courierName"`
	TrackingNumber       string `json:"trackingNumber"`
	TrackingURL          string `json:"trackingUrl"`

	Notes     []Note    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o *Order) addNote(now time.Time, event, detail string) {
	o.Notes = append(o.Notes, Note{Timestamp: now, Event: event, Detail: detail})
}

const defaultPendingLimit = 100

// awaitingTracking reports whether the periodic sweep should poll the order.
func (o Order) awaitingTracking() bool {
	return o.ShiprocketShipmentID != "" &&
		(o.TrackingNumber == "" || o.CourierName == "") &&
		!o.OrderStatus.Final()
}

// totalsMismatch reports whether total differs from subtotal+shippingCost+tax
// by more than half a paisa.
func (o Order) totalsMismatch() bool {
	sum := decimal.NewFromFloat(o.Subtotal).
		Add(decimal.NewFromFloat(o.ShippingCost)).
		Add(decimal.NewFromFloat(o.Tax))
	return sum.Sub(decimal.NewFromFloat(o.Total)).Abs().GreaterThan(decimal.New(5, -3))
}

// HistoryEntry is the snapshot projected onto the owner's order history.
func (o Order) HistoryEntry() user.HistoryEntry {
	items := make([]user.HistoryItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, user.HistoryItem{
			ProductID:   it.ProductID,
			ProductName: it.Title,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Img:         it.Img,
		})
	}
	return user.HistoryEntry{
		OrderID:       o.OrderID,
		OrderDate:     o.CreatedAt,
		OrderAmount:   o.Total,
		OrderStatus:   string(o.OrderStatus),
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Items:         items,
	}
}

type ShipmentDetails struct {
	ShiprocketOrderID    string `json:"shiprocketOrderId"`
	ShiprocketShipmentID string `json:"shiprocketShipmentId"`
	CourierName          string `json:"courierName"`
	TrackingNumber       string `json:"trackingNumber"`
	TrackingURL          string `json:"trackingUrl"`
	HasTracking          bool   `json:"hasTracking"`
	HasCourier           bool   `json:"hasCourier"`
	TrackingStatus       string `json:"trackingStatus"`
	CanTrack             bool   `json:"canTrack"`
	EstimatedDelivery    string `json:"estimatedDelivery"`
}

func (o Order) ShipmentDetails() ShipmentDetails {
	d := ShipmentDetails{
		ShiprocketOrderID:    o.ShiprocketOrderID,
		ShiprocketShipmentID: o.ShiprocketShipmentID,
		CourierName:          o.CourierName,
		TrackingNumber:       o.TrackingNumber,
		TrackingURL:          o.TrackingURL,
		HasTracking:          o.TrackingNumber != "",
		HasCourier:           o.CourierName != "",
		CanTrack:             o.TrackingNumber != "",
		TrackingStatus:       "pending",
		EstimatedDelivery:    "Will be updated when courier picks up",
	}
	if d.HasTracking {
		d.TrackingStatus = "active"
		d.EstimatedDelivery = "3-5 business days"
	}
	return d
}

// View is the order as rendered by the API.
type View struct {
	Order
	ShipmentDetails ShipmentDetails `json:"shipmentDetails"`
}

func (o Order) View() View {
	return View{Order: o, ShipmentDetails: o.ShipmentDetails()}
}

// TrackingSummary is the compact order block returned by refresh endpoints.
type TrackingSummary struct {
	OrderID              string `json:"orderId"`
	OrderStatus          Status `json:"orderStatus"`
	ShiprocketOrderID    string `json:"shiprocketOrderId"`
	ShiprocketShipmentID string `json:"shiprocketShipmentId"`
	CourierName          string `json:"courierName"`
	TrackingNumber       string `json:"trackingNumber"`
	TrackingURL          string `json:"trackingUrl"`
}

func (o Order) Summary() TrackingSummary {
	return TrackingSummary{
		OrderID:              o.OrderID,
		OrderStatus:          o.OrderStatus,
		ShiprocketOrderID:    o.ShiprocketOrderID,
		ShiprocketShipmentID: o.ShiprocketShipmentID,
		CourierName:          o.CourierName,
		TrackingNumber:       o.TrackingNumber,
		TrackingURL:          o.TrackingURL,
	}
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderID returns "ORD" + unix millis + 5 uppercase alphanumerics.
func NewOrderID(now time.Time) string {
	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return "ORD" + strconv.FormatInt(now.UnixMilli(), 10) + string(suffix)
}
