// Package httpx holds the response envelope, request validation and
// middleware shared by every HTTP handler.
package httpx

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
)

var development atomic.Bool

// SetDevelopment toggles whether 5xx responses expose error details.
func SetDevelopment(on bool) {
	development.Store(on)
}

func Development() bool {
	return development.Load()
}

// Error writes {status:"error", message, details?}. Details are always
// attached to client errors and only attached to server errors in
// development.
func Error(c *fiber.Ctx, status int, message string, err error) error {
	body := fiber.Map{
		"status":  "error",
		"message": message,
	}
	if err != nil && (status < fiber.StatusInternalServerError || development.Load()) {
		body["details"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// Success writes body with status:"success" added.
func Success(c *fiber.Ctx, status int, body fiber.Map) error {
	if body == nil {
		body = fiber.Map{}
	}
	body["status"] = "success"
	return c.Status(status).JSON(body)
}

// ErrorHandler is installed as the fiber app error handler so errors
// returned from handlers and middleware share the envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Error(c, fe.Code, fe.Message, nil)
	}
	slog.Error("unhandled request error", "method", c.Method(), "path", c.Path(), "error", err)
	return Error(c, fiber.StatusInternalServerError, "Internal server error", err)
}

// RequestLogger logs one line per request once the handler chain returns.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		logger.Info("request",
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", status,
			"latency", time.Since(start),
		)
		return err
	}
}
