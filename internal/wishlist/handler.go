package wishlist

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/user"
)

// Handler delegates wishlist operations to the wishlist service.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/wishlist", "/wishlist"} {
		app.Get(prefix+"/my-wishlist", h.getWishlist)
		app.Post(prefix+"/update", h.updateWishlist)
		app.Post(prefix+"/items", h.addItem)
		app.Delete(prefix+"/items/:productId", h.removeItem)
	}
}

type updateRequest struct {
	Wishlist []user.ProductItem `json:"wishlist"`
}

func (h *Handler) getWishlist(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	items, err := h.service.GetWishlist(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"wishlist": items})
}

func (h *Handler) updateWishlist(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(updateRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Wishlist must be an array", err)
	}
	if payload.Wishlist == nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Wishlist data is required", nil)
	}

	items, err := h.service.ReplaceWishlist(c.UserContext(), userID, payload.Wishlist)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"message": "Wishlist updated successfully", "wishlist": items})
}

func (h *Handler) addItem(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(user.ProductItem)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	items, err := h.service.AddToWishlist(c.UserContext(), userID, *payload)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"wishlist": items})
}

func (h *Handler) removeItem(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	items, err := h.service.RemoveFromWishlist(c.UserContext(), userID, c.Params("productId"))
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"wishlist": items})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidItem):
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid wishlist item", err)
	case errors.Is(err, ErrAlreadyInWishlist):
		return httpx.Error(c, fiber.StatusConflict, "Product already in wishlist", nil)
	case errors.Is(err, ErrNotInWishlist):
		return httpx.Error(c, fiber.StatusNotFound, "Product not in wishlist", nil)
	case errors.Is(err, ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "User not found", nil)
	default:
		return httpx.Error(c, fiber.StatusInternalServerError, "Failed to update wishlist", err)
	}
}
