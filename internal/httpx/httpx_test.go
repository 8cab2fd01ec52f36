package httpx

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name" validate:"required"`
	Items []string `json:"items" validate:"min=1"`
	Total float64  `json:"total" validate:"gt=0"`
}

func TestValidate_ReportsJSONPath(t *testing.T) {
	err := Validate(sample{Items: []string{"a"}, Total: 1})
	require.Error(t, err)
	assert.Equal(t, "name is required", err.Error())

	err = Validate(sample{Name: "x", Total: 1})
	require.Error(t, err)
	assert.Equal(t, "items must have at least 1 entries", err.Error())

	assert.NoError(t, Validate(sample{Name: "x", Items: []string{"a"}, Total: 2}))
}

func TestError_DetailsOnlyForClientErrorsOutsideDevelopment(t *testing.T) {
	app := fiber.New()
	app.Get("/bad", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusBadRequest, "bad input", errors.New("total is required"))
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusInternalServerError, "Internal server error", errors.New("db down"))
	})

	SetDevelopment(false)
	defer SetDevelopment(false)

	res, err := app.Test(httptest.NewRequest("GET", "/bad", nil))
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	assert.JSONEq(t, `{"status":"error","message":"bad input","details":"total is required"}`, string(b))

	res, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	b, _ = io.ReadAll(res.Body)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, string(b))

	SetDevelopment(true)
	res, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	b, _ = io.ReadAll(res.Body)
	assert.Contains(t, string(b), `"details":"db down"`)
}

func TestErrorHandler_FiberErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/gone", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "nothing here")
	})

	res, err := app.Test(httptest.NewRequest("GET", "/gone", nil))
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
	assert.JSONEq(t, `{"status":"error","message":"nothing here"}`, string(b))
}
