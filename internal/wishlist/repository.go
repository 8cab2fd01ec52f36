package wishlist

import (
	"context"
	"errors"
	"sync"

	"github.com/wichananm65/storefront-backend/internal/user"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrAlreadyInWishlist = errors.New("product already in wishlist")
	ErrNotInWishlist     = errors.New("product not in wishlist")
	ErrInvalidItem       = errors.New("invalid wishlist item")
)

// Repository persists the wishlist stored on the user record.
type Repository interface {
	GetWishlist(ctx context.Context, userID int) ([]user.ProductItem, error)
	ReplaceWishlist(ctx context.Context, userID int, items []user.ProductItem, updatedAt string) ([]user.ProductItem, error)
	AddToWishlist(ctx context.Context, userID int, item user.ProductItem, updatedAt string) ([]user.ProductItem, error)
	RemoveFromWishlist(ctx context.Context, userID int, productID string, updatedAt string) ([]user.ProductItem, error)
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu    sync.RWMutex
	lists map[int][]user.ProductItem
}

func NewInMemoryRepository(seed []user.User) *InMemoryRepository {
	r := &InMemoryRepository{lists: make(map[int][]user.ProductItem, len(seed))}
	for _, u := range seed {
		r.lists[u.ID] = append([]user.ProductItem{}, u.Wishlist...)
	}
	return r
}

func (r *InMemoryRepository) GetWishlist(_ context.Context, userID int) ([]user.ProductItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items, ok := r.lists[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]user.ProductItem{}, items...), nil
}

func (r *InMemoryRepository) ReplaceWishlist(_ context.Context, userID int, items []user.ProductItem, _ string) ([]user.ProductItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lists[userID]; !ok {
		return nil, ErrNotFound
	}
	r.lists[userID] = append([]user.ProductItem{}, items...)
	return items, nil
}

func (r *InMemoryRepository) AddToWishlist(_ context.Context, userID int, item user.ProductItem, _ string) ([]user.ProductItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.lists[userID]
	if !ok {
		return nil, ErrNotFound
	}
	items, err := addItem(items, item)
	if err != nil {
		return nil, err
	}
	r.lists[userID] = items
	return append([]user.ProductItem{}, items...), nil
}

func (r *InMemoryRepository) RemoveFromWishlist(_ context.Context, userID int, productID string, _ string) ([]user.ProductItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.lists[userID]
	if !ok {
		return nil, ErrNotFound
	}
	items, err := removeItem(items, productID)
	if err != nil {
		return nil, err
	}
	r.lists[userID] = items
	return append([]user.ProductItem{}, items...), nil
}

func addItem(items []user.ProductItem, item user.ProductItem) ([]user.ProductItem, error) {
	for _, existing := range items {
		if existing.ProductID == item.ProductID {
			return nil, ErrAlreadyInWishlist
		}
	}
	return append(items, item), nil
}

func removeItem(items []user.ProductItem, productID string) ([]user.ProductItem, error) {
	out := make([]user.ProductItem, 0, len(items))
	removed := false
	for _, existing := range items {
		if existing.ProductID == productID || existing.ID == productID {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		return nil, ErrNotInWishlist
	}
	return out, nil
}
