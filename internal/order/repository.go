package order

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("order not found")

// Repository persists orders. Save replaces the mutable fields of an
// existing order identified by OrderID.
type Repository interface {
	Create(ctx context.Context, ord Order) (Order, error)
	Save(ctx context.Context, ord Order) error
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	GetByShiprocketOrderID(ctx context.Context, shiprocketOrderID string) (Order, error)

	// GetByRazorpayPaymentID returns the order paid for by a gateway
	// payment. Create fails with ErrPaymentAlreadyUsed when the payment
	// already paid for another order.
	GetByRazorpayPaymentID(ctx context.Context, paymentID string) (Order, error)
	ListByUser(ctx context.Context, userID int) ([]Order, error)

	// ListByOrderIDs returns the orders whose orderId is in ids, in the
	// order of ids. Unknown ids are skipped.
	ListByOrderIDs(ctx context.Context, ids []string) ([]Order, error)

	// ListPendingTracking returns up to limit orders with id > afterID, in
	// id order, that have a shipment id but no tracking number or no
	// courier yet and are not in a final status.
	ListPendingTracking(ctx context.Context, afterID int64, limit int) ([]Order, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu     sync.RWMutex
	orders []Order
	nextID int64
	saves  int
}

// NewInMemoryRepository keeps seeded ids and numbers seeds without one
// after the highest seeded id.
func NewInMemoryRepository(seed []Order) *InMemoryRepository {
	r := &InMemoryRepository{nextID: 1}
	for _, o := range seed {
		if o.ID >= r.nextID {
			r.nextID = o.ID + 1
		}
	}
	for _, o := range seed {
		if o.ID == 0 {
			o.ID = r.nextID
			r.nextID++
		}
		r.orders = append(r.orders, clone(o))
	}
	return r
}

func clone(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	o.Notes = append([]Note(nil), o.Notes...)
	return o
}

func (r *InMemoryRepository) Create(_ context.Context, ord Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.OrderID == ord.OrderID {
			return Order{}, errors.New("order id already exists")
		}
		if ord.RazorpayPaymentID != "" && existing.RazorpayPaymentID == ord.RazorpayPaymentID {
			return Order{}, ErrPaymentAlreadyUsed
		}
	}
	ord.ID = r.nextID
	r.nextID++
	r.orders = append(r.orders, clone(ord))
	return ord, nil
}

func (r *InMemoryRepository) Save(_ context.Context, ord Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.orders {
		if r.orders[i].OrderID == ord.OrderID {
			r.orders[i] = clone(ord)
			r.saves++
			return nil
		}
	}
	return ErrNotFound
}

// Saves reports how many times Save succeeded.
func (r *InMemoryRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

func (r *InMemoryRepository) GetByOrderID(_ context.Context, orderID string) (Order, error) {
	return r.find(func(o Order) bool { return o.OrderID == orderID })
}

func (r *InMemoryRepository) GetByShiprocketOrderID(_ context.Context, id string) (Order, error) {
	return r.find(func(o Order) bool { return id != "" && o.ShiprocketOrderID == id })
}

func (r *InMemoryRepository) GetByRazorpayPaymentID(_ context.Context, id string) (Order, error) {
	return r.find(func(o Order) bool { return id != "" && o.RazorpayPaymentID == id })
}

func (r *InMemoryRepository) find(match func(Order) bool) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if match(o) {
			return clone(o), nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *InMemoryRepository) ListByUser(_ context.Context, userID int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, clone(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) ListByOrderIDs(_ context.Context, ids []string) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		for _, o := range r.orders {
			if o.OrderID == id {
				out = append(out, clone(o))
				break
			}
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ListPendingTracking(_ context.Context, afterID int64, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.ID > afterID && o.awaitingTracking() {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
