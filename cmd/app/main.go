package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/auth"
	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/config"
	"github.com/wichananm65/storefront-backend/internal/database"
	"github.com/wichananm65/storefront-backend/internal/httpx"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"github.com/wichananm65/storefront-backend/internal/razorpay"
	"github.com/wichananm65/storefront-backend/internal/shiprocket"
	"github.com/wichananm65/storefront-backend/internal/tracking"
	"github.com/wichananm65/storefront-backend/internal/user"
	"github.com/wichananm65/storefront-backend/internal/wishlist"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	httpx.SetDevelopment(cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, logger); err != nil {
		logger.Error("migrate database", "error", err)
		os.Exit(1)
	}

	userService := user.NewService(user.NewPostgresRepository(db))
	cartService := cart.NewService(cart.NewPostgresRepository(db))
	addressService := address.NewService(address.NewPostgresRepository(db))
	wishlistService := wishlist.NewService(wishlist.NewPostgresRepository(db))
	verifier := razorpay.NewVerifier(cfg.Razorpay.KeySecret, cfg.Razorpay.WebhookSecret)

	orderDeps := order.Deps{
		Users:          userService,
		Carts:          cartService,
		Verifier:       verifier,
		PickupLocation: cfg.Shiprocket.PickupLocation,
		Logger:         logger.With("component", "order"),
	}
	var shipper *shiprocket.Client
	if cfg.Shiprocket.Enabled() {
		shipper = shiprocket.NewClient(shiprocket.Config{
			BaseURL:  cfg.Shiprocket.BaseURL,
			Email:    cfg.Shiprocket.Email,
			Password: cfg.Shiprocket.Password,
		})
		orderDeps.Shipper = shipper
	}
	orderService := order.NewService(order.NewPostgresRepository(db), orderDeps)

	paymentDeps := payment.Deps{
		Verifier: verifier,
		Orders:   orderService,
		Users:    userService,
		KeyID:    cfg.Razorpay.KeyID,
		Logger:   logger.With("component", "payment"),
	}
	if cfg.Razorpay.Enabled() {
		paymentDeps.Gateway = razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	}
	paymentService := payment.NewService(payment.NewPostgresRepository(db), paymentDeps)

	var tracker order.TrackingController
	var updater *tracking.Updater
	if shipper != nil {
		updater = tracking.NewUpdater(orderService, shipper, cfg.Tracking, logger)
		tracker = updater
	}
	if cfg.Shiprocket.WebhookToken == "" {
		logger.Warn("SHIPROCKET_WEBHOOK_TOKEN is not set; the shipment webhook accepts unauthenticated requests")
	}

	userHandler := user.NewHandler(userService, cfg.JWTSecret)
	orderHandler := order.NewHandler(orderService, tracker, cfg.Shiprocket.WebhookToken)
	paymentHandler := payment.NewHandler(paymentService)

	app := fiber.New(fiber.Config{
		ErrorHandler:          httpx.ErrorHandler,
		DisableStartupMessage: !cfg.IsDevelopment(),
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDevelopment()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Razorpay-Signature, X-Api-Key",
	}))
	app.Use(httpx.RequestLogger(logger))

	app.Get("/health", healthHandler(db))
	userHandler.RegisterPublicRoutes(app)
	orderHandler.RegisterPublicRoutes(app)
	paymentHandler.RegisterPublicRoutes(app)

	app.Use(auth.Middleware(cfg.JWTSecret, func(c *fiber.Ctx) bool {
		if c.Method() == fiber.MethodOptions {
			return true
		}
		p := c.Path()
		return p == "/health" || user.PublicPath(p) || order.PublicPath(p) || payment.PublicPath(p)
	}))

	userHandler.RegisterProtectedRoutes(app)
	cart.NewHandler(cartService).RegisterProtectedRoutes(app)
	address.NewHandler(addressService).RegisterProtectedRoutes(app)
	wishlist.NewHandler(wishlistService).RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)
	paymentHandler.RegisterProtectedRoutes(app)

	if updater != nil {
		updater.Start()
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if updater != nil {
			updater.Stop()
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("server listening", "addr", cfg.Addr, "env", cfg.Env)
	if err := app.Listen(cfg.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return httpx.Error(c, fiber.StatusServiceUnavailable, "database unavailable", err)
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
