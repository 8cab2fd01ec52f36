package wishlist

import (
	"context"
	"fmt"
	"strings"
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

func (s *Service) GetWishlist(ctx context.Context, userID int) ([]user.ProductItem, error) {
	return s.repo.GetWishlist(ctx, userID)
}

func (s *Service) ReplaceWishlist(ctx context.Context, userID int, items []user.ProductItem) ([]user.ProductItem, error) {
	out := make([]user.ProductItem, 0, len(items))
	for i, item := range items {
		item = normalize(item)
		if err := httpx.Validate(item); err != nil {
			return nil, fmt.Errorf("%w: wishlist[%d].%v", ErrInvalidItem, i, err)
		}
		out = append(out, item)
	}
	return s.repo.ReplaceWishlist(ctx, userID, out, s.stamp())
}

func (s *Service) AddToWishlist(ctx context.Context, userID int, item user.ProductItem) ([]user.ProductItem, error) {
	item = normalize(item)
	if err := httpx.Validate(item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return s.repo.AddToWishlist(ctx, userID, item, s.stamp())
}

func (s *Service) RemoveFromWishlist(ctx context.Context, userID int, productID string) ([]user.ProductItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: productId is required", ErrInvalidItem)
	}
	return s.repo.RemoveFromWishlist(ctx, userID, productID, s.stamp())
}

func normalize(item user.ProductItem) user.ProductItem {
	item.ID = strings.TrimSpace(item.ID)
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ID == "" {
		item.ID = item.ProductID
	}
	if item.ProductID == "" {
		item.ProductID = item.ID
	}
	return item
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
