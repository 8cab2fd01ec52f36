package cart

import (
	"errors"
	"strings"

	"github.com/wichananm65/storefront-backend/internal/user"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrInvalidItem = errors.New("invalid cart items. each item must have an id, quantity, price, and title")
)

const defaultDescription = "Premium quality product"

// normalizeItem fills the fields the storefront sends inconsistently:
// id falls back to productId, quantity 0 means one unit.
func normalizeItem(item user.CartItem) user.CartItem {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		id = strings.TrimSpace(item.ProductID)
	}
	item.ID = id
	if item.ProductID == "" {
		item.ProductID = id
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.Description == "" {
		item.Description = defaultDescription
	}
	return item
}

// mergeQuantity adds delta units of item to items. A line that drops to
// zero or below is removed.
func mergeQuantity(items []user.CartItem, item user.CartItem, delta int) []user.CartItem {
	out := make([]user.CartItem, 0, len(items)+1)
	found := false
	for _, existing := range items {
		if existing.ProductID == item.ProductID {
			found = true
			existing.Quantity += delta
			if existing.Quantity <= 0 {
				continue
			}
		}
		out = append(out, existing)
	}
	if !found && delta > 0 {
		item.Quantity = delta
		out = append(out, item)
	}
	return out
}
