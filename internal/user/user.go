package user

import (
	"sort"
	"time"

	"github.com/wichananm65/storefront-backend/internal/address"
)

type User struct {
	ID              int              `json:"userId"`
	Email           string           `json:"email"`
	Password        string           `json:"password,omitempty"`
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	Phone           string           `json:"phone"`
	ProfilePic      string           `json:"profilePic"`
	ShippingAddress *address.Address `json:"shippingAddress,omitempty"`
	BillingAddress  *address.Address `json:"billingAddress,omitempty"`

	Cart         []CartItem     `json:"cart"`
	Wishlist     []ProductItem  `json:"wishlist"`
	OrderHistory []HistoryEntry `json:"orderHistory"`
	CreatedAt    string         `json:"createAt,omitempty"`
	UpdatedAt    string         `json:"updateAt,omitempty"`
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ProductItem is the product snapshot kept in wishlists and carts.
type ProductItem struct {
	ID          string  `json:"id" validate:"required"`
	ProductID   string  `json:"productId"`
	Title       string  `json:"title" validate:"required"`
	Price       float64 `json:"price" validate:"gte=0"`
	Img         string  `json:"img"`
	Description string  `json:"description"`
}

type CartItem struct {
	ProductItem
	Quantity int `json:"quantity" validate:"gt=0"`
}

// HistoryEntry is the per-order snapshot projected onto the user record.
type HistoryEntry struct {
	OrderID       string        `json:"orderId"`
	OrderDate     time.Time     `json:"orderDate"`
	OrderAmount   float64       `json:"orderAmount"`
	OrderStatus   string        `json:"orderStatus"`
	PaymentStatus string        `json:"paymentStatus"`
	PaymentMethod string        `json:"paymentMethod"`
	Items         []HistoryItem `json:"items"`
}

type HistoryItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Img         string  `json:"img"`
}

// upsertHistory replaces the entry with the same orderId or appends it.
func upsertHistory(history []HistoryEntry, entry HistoryEntry) []HistoryEntry {
	for i := range history {
		if history[i].OrderID == entry.OrderID {
			if entry.OrderDate.IsZero() {
				entry.OrderDate = history[i].OrderDate
			}
			history[i] = entry
			return history
		}
	}
	return append(history, entry)
}

// newestFirst returns a copy of history ordered by orderDate descending.
func newestFirst(history []HistoryEntry) []HistoryEntry {
	out := append([]HistoryEntry{}, history...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderDate.After(out[j].OrderDate)
	})
	return out
}
