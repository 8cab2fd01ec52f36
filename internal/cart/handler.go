package cart

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/user"
)

// Handler delegates cart operations to the cart service.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/cart", "/cart"} {
		app.Get(prefix+"/my-cart", h.getCart)
		app.Post(prefix+"/update", h.updateCart)
		app.Post(prefix+"/items", h.addToCart)
		app.Delete(prefix, h.clearCart)
	}
}

type updateRequest struct {
	Cart []user.CartItem `json:"cart"`
}

type addRequest struct {
	user.ProductItem
	Quantity int `json:"quantity"`
}

func (h *Handler) getCart(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}

	items, err := h.service.GetCart(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"cart": items})
}

func (h *Handler) updateCart(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(updateRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Cart must be an array", err)
	}
	if payload.Cart == nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Cart data is required", nil)
	}

	items, err := h.service.ReplaceCart(c.UserContext(), userID, payload.Cart)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"message": "Cart updated successfully", "cart": items})
}

func (h *Handler) addToCart(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(addRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	delta := payload.Quantity
	if delta == 0 {
		delta = 1
	}

	items, err := h.service.AddToCart(c.UserContext(), userID, user.CartItem{ProductItem: payload.ProductItem}, delta)
	if err != nil {
		return h.fail(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"cart": items})
}

func (h *Handler) clearCart(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	if err := h.service.ClearCart(c.UserContext(), userID); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidItem):
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid cart items. Each item must have an ID, quantity, price, and title.", err)
	case errors.Is(err, ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "User not found", nil)
	default:
		return httpx.Error(c, fiber.StatusInternalServerError, "Failed to update cart", err)
	}
}
