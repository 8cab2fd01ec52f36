package cart

import (
	"context"
	"sync"

	"github.com/wichananm65/storefront-backend/internal/user"
)

// Repository persists the cart stored on the user record.
type Repository interface {
	GetCart(ctx context.Context, userID int) ([]user.CartItem, error)
	ReplaceCart(ctx context.Context, userID int, items []user.CartItem, updatedAt string) ([]user.CartItem, error)
	AddToCart(ctx context.Context, userID int, item user.CartItem, delta int, updatedAt string) ([]user.CartItem, error)
	ClearCart(ctx context.Context, userID int, updatedAt string) error
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu    sync.RWMutex
	carts map[int][]user.CartItem
}

func NewInMemoryRepository(seed []user.User) *InMemoryRepository {
	r := &InMemoryRepository{carts: make(map[int][]user.CartItem, len(seed))}
	for _, u := range seed {
		r.carts[u.ID] = append([]user.CartItem{}, u.Cart...)
	}
	return r
}

func (r *InMemoryRepository) GetCart(_ context.Context, userID int) ([]user.CartItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items, ok := r.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]user.CartItem{}, items...), nil
}

func (r *InMemoryRepository) ReplaceCart(_ context.Context, userID int, items []user.CartItem, _ string) ([]user.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[userID]; !ok {
		return nil, ErrNotFound
	}
	r.carts[userID] = append([]user.CartItem{}, items...)
	return items, nil
}

func (r *InMemoryRepository) AddToCart(_ context.Context, userID int, item user.CartItem, delta int, _ string) ([]user.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	items = mergeQuantity(items, item, delta)
	r.carts[userID] = items
	return append([]user.CartItem{}, items...), nil
}

// ClearCart empties a user's cart.
func (r *InMemoryRepository) ClearCart(_ context.Context, userID int, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[userID]; !ok {
		return ErrNotFound
	}
	r.carts[userID] = []user.CartItem{}
	return nil
}
