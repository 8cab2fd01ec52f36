package payment

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrNotFound  = errors.New("payment not found")
	ErrDuplicate = errors.New("payment already exists")
)

type Repository interface {
	Create(ctx context.Context, p Payment) (Payment, error)
	Save(ctx context.Context, p Payment) error

	// FindByReference matches orderId, razorpayOrderId or transactionId.
	FindByReference(ctx context.Context, ref string) (Payment, error)

	// FindByGateway matches the gateway payment id or the gateway order id.
	FindByGateway(ctx context.Context, paymentID, razorpayOrderID string) (Payment, error)

	GetByPaymentID(ctx context.Context, paymentID string) (Payment, error)

	// ListByUser returns one page, newest first, and the total count.
	ListByUser(ctx context.Context, userID, offset, limit int) ([]Payment, int, error)
}

type InMemoryRepository struct {
	mu       sync.RWMutex
	payments []Payment
	nextID   int64
}

func NewInMemoryRepository(seed []Payment) *InMemoryRepository {
	r := &InMemoryRepository{nextID: 1}
	for _, p := range seed {
		r.payments = append(r.payments, clone(p))
		if p.ID >= r.nextID {
			r.nextID = p.ID + 1
		}
	}
	return r
}

func clone(p Payment) Payment {
	p.OrderItems = append([]Item(nil), p.OrderItems...)
	if p.Notes != nil {
		notes := make(map[string]string, len(p.Notes))
		for k, v := range p.Notes {
			notes[k] = v
		}
		p.Notes = notes
	}
	return p
}

func (r *InMemoryRepository) Create(_ context.Context, p Payment) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.TransactionID == p.TransactionID || existing.RazorpayOrderID == p.RazorpayOrderID || existing.OrderID == p.OrderID {
			return Payment{}, ErrDuplicate
		}
	}
	p.ID = r.nextID
	r.nextID++
	r.payments = append(r.payments, clone(p))
	return p, nil
}

func (r *InMemoryRepository) Save(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.payments {
		if r.payments[i].TransactionID != p.TransactionID {
			continue
		}
		if p.PaymentID != "" {
			for j, other := range r.payments {
				if j != i && other.PaymentID == p.PaymentID {
					return ErrDuplicate
				}
			}
		}
		r.payments[i] = clone(p)
		return nil
	}
	return ErrNotFound
}

func (r *InMemoryRepository) FindByReference(_ context.Context, ref string) (Payment, error) {
	return r.find(func(p Payment) bool {
		return ref != "" && (p.OrderID == ref || p.RazorpayOrderID == ref || p.TransactionID == ref)
	})
}

func (r *InMemoryRepository) FindByGateway(_ context.Context, paymentID, razorpayOrderID string) (Payment, error) {
	return r.find(func(p Payment) bool {
		return (paymentID != "" && p.PaymentID == paymentID) || (razorpayOrderID != "" && p.RazorpayOrderID == razorpayOrderID)
	})
}

func (r *InMemoryRepository) GetByPaymentID(_ context.Context, paymentID string) (Payment, error) {
	return r.find(func(p Payment) bool { return paymentID != "" && p.PaymentID == paymentID })
}

func (r *InMemoryRepository) find(match func(Payment) bool) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if match(p) {
			return clone(p), nil
		}
	}
	return Payment{}, ErrNotFound
}

func (r *InMemoryRepository) ListByUser(_ context.Context, userID, offset, limit int) ([]Payment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mine := make([]Payment, 0)
	for _, p := range r.payments {
		if p.UserID == userID {
			mine = append(mine, clone(p))
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })

	total := len(mine)
	if offset >= total {
		return []Payment{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return mine[offset:end], total, nil
}
