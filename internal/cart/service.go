package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/user"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) GetCart(ctx context.Context, userID int) ([]user.CartItem, error) {
	return s.repo.GetCart(ctx, userID)
}

// ReplaceCart normalizes and validates every line before storing the
// whole cart.
func (s *Service) ReplaceCart(ctx context.Context, userID int, items []user.CartItem) ([]user.CartItem, error) {
	normalized := make([]user.CartItem, 0, len(items))
	for i, item := range items {
		item = normalizeItem(item)
		if err := httpx.Validate(item); err != nil {
			return nil, fmt.Errorf("%w: cart[%d].%v", ErrInvalidItem, i, err)
		}
		normalized = append(normalized, item)
	}
	return s.repo.ReplaceCart(ctx, userID, normalized, s.stamp())
}

// AddToCart applies a quantity delta; negative values remove units.
func (s *Service) AddToCart(ctx context.Context, userID int, item user.CartItem, delta int) ([]user.CartItem, error) {
	item = normalizeItem(item)
	if item.ProductID == "" {
		return nil, fmt.Errorf("%w: productId is required", ErrInvalidItem)
	}
	if delta == 0 {
		return s.repo.GetCart(ctx, userID)
	}
	if delta > 0 {
		probe := item
		probe.Quantity = delta
		if err := httpx.Validate(probe); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
	}
	return s.repo.AddToCart(ctx, userID, item, delta, s.stamp())
}

func (s *Service) ClearCart(ctx context.Context, userID int) error {
	return s.repo.ClearCart(ctx, userID, s.stamp())
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
