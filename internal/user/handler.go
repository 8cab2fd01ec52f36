package user

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/httpx"
)

type Handler struct {
	service   *Service
	jwtSecret string
}

type loginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Phone     string `json:"phone"`
}

func NewHandler(service *Service, jwtSecret string) *Handler {
	return &Handler{service: service, jwtSecret: jwtSecret}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/auth", "/auth"} {
		app.Post(prefix+"/signup", h.register)
		app.Post(prefix+"/login", h.login)
	}
}

// PublicPath reports whether path is served without a token.
func PublicPath(path string) bool {
	for _, prefix := range []string{"/api/auth", "/auth"} {
		if path == prefix+"/signup" || path == prefix+"/login" {
			return true
		}
	}
	return false
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	for _, prefix := range []string{"/api/auth", "/auth"} {
		app.Get(prefix+"/profile", h.getProfile)
		// PATCH shares the handler since updates are partial anyway
		app.Put(prefix+"/profile", h.updateProfile)
		app.Patch(prefix+"/profile", h.updateProfile)
		app.Get(prefix+"/order-history", h.orderHistory)
	}
}

func (h *Handler) login(c *fiber.Ctx) error {
	payload := new(loginRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	identifier := payload.Email
	if identifier == "" {
		identifier = payload.Phone
	}
	if identifier == "" || payload.Password == "" {
		return httpx.Error(c, fiber.StatusBadRequest, "Email or phone and password are required", nil)
	}

	user, err := h.service.Authenticate(c.UserContext(), identifier, payload.Password)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "Invalid email or password", nil)
	}

	token, err := auth.IssueToken(h.jwtSecret, user.ID, user.Email, time.Now())
	if err != nil {
		return httpx.Error(c, fiber.StatusInternalServerError, "failed to generate token", err)
	}

	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Login successful",
		"user":    sanitizeUser(user),
		"token":   token,
	})
}

func (h *Handler) register(c *fiber.Ctx) error {
	payload := new(registerRequest)
	if err := c.BodyParser(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := httpx.Validate(payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	created, err := h.service.Register(c.UserContext(), User{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return httpx.Error(c, fiber.StatusBadRequest, "User already exists", nil)
		}
		return httpx.Error(c, fiber.StatusInternalServerError, "Failed to register user", err)
	}

	token, err := auth.IssueToken(h.jwtSecret, created.ID, created.Email, time.Now())
	if err != nil {
		return httpx.Error(c, fiber.StatusInternalServerError, "failed to generate token", err)
	}

	return httpx.Success(c, fiber.StatusCreated, fiber.Map{
		"message": "User registered successfully",
		"user":    sanitizeUser(created),
		"token":   token,
	})
}

// getProfile returns the user record for the currently authenticated user
// with the password blanked.
func (h *Handler) getProfile(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}

	user, err := h.service.GetByID(c.UserContext(), userID)
	if err != nil {
		return h.lookupFailed(c, err)
	}

	return c.JSON(sanitizeUser(user))
}

func (h *Handler) updateProfile(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}

	var payload ProfileUpdate
	if err := c.BodyParser(&payload); err != nil {
		return httpx.Error(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	for _, a := range []*address.Address{payload.ShippingAddress, payload.BillingAddress} {
		if a == nil {
			continue
		}
		if err := httpx.Validate(a); err != nil {
			return httpx.Error(c, fiber.StatusBadRequest, "Invalid address", err)
		}
	}

	updated, err := h.service.UpdateProfile(c.UserContext(), userID, payload)
	if err != nil {
		return h.lookupFailed(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Profile updated successfully",
		"user":    sanitizeUser(updated),
	})
}

func (h *Handler) orderHistory(c *fiber.Ctx) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return httpx.Error(c, fiber.StatusUnauthorized, "unauthorized", nil)
	}
	history, err := h.service.OrderHistory(c.UserContext(), userID)
	if err != nil {
		return h.lookupFailed(c, err)
	}
	return httpx.Success(c, fiber.StatusOK, fiber.Map{"orderHistory": history})
}

func (h *Handler) lookupFailed(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrNotFound) {
		return httpx.Error(c, fiber.StatusNotFound, "User not found", nil)
	}
	return httpx.Error(c, fiber.StatusInternalServerError, "Internal server error", err)
}

func sanitizeUser(user User) User {
	user.Password = ""
	return user
}
