package address

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/httpx"
)

// Handler delegates address book operations to the address service.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/address", "/address"} {
		app.Get(prefix, h.list)
		app.Post(prefix, h.add)
		app.Patch(prefix, h.update)
		app.Delete(prefix, h.remove)
	}
}

type entryRequest struct {
	AddressID int    `json:"addressId"`
	Name      string `json:"addressName"`
	Address
}

func (h *Handler) list(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	entries, err := h.service.List(c.UserContext(), userID)
	if err != nil {
		return httpx.Error(c, fiber.StatusInternalServerError, "Failed to load addresses", err)
	}
	return c.JSON(entries)
}

func (h *Handler) add(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(entryRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	entry, err := h.service.Add(c.UserContext(), userID, payload.Name, payload.Address)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *Handler) update(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(entryRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if payload.AddressID <= 0 {
		return httpx.Error(c, fiber.StatusBadRequest, "invalid addressId", nil)
	}

	entry, err := h.service.Update(c.UserContext(), userID, payload.AddressID, payload.Name, payload.Address)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(entry)
}

func (h *Handler) remove(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	payload := new(entryRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if payload.AddressID <= 0 {
		return httpx.Error(c, fiber.StatusBadRequest, "invalid addressId", nil)
	}
	if err := h.service.Delete(c.UserContext(), userID, payload.AddressID); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid address", err)
	case errors.Is(err, ErrNotFound):
		return httpx.Error(c, fiber.StatusNotFound, "Address not found", nil)
	default:
		return httpx.Error(c, fiber.StatusInternalServerError, "Failed to save address", err)
	}
}
