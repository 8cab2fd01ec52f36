package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	JWTSecret      string
	AllowedOrigins string

	Razorpay   RazorpayConfig
	Shiprocket ShiprocketConfig
	Tracking   TrackingConfig
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// Enabled reports whether gateway calls can be made at all.
func (r RazorpayConfig) Enabled() bool {
	return r.KeyID != "" && r.KeySecret != ""
}

type ShiprocketConfig struct {
	BaseURL        string
	Email          string
	Password       string
	PickupLocation string
	WebhookToken   string
}

func (s ShiprocketConfig) Enabled() bool {
	return s.Email != "" && s.Password != ""
}

type TrackingConfig struct {
	Interval        time.Duration
	RequestInterval time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

func Load() Config {
	cfg := Config{
		Addr:           addrFromEnv(),
		Env:            strings.ToLower(getEnv("APP_ENV", getEnv("NODE_ENV", "production"))),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: getEnv("CORS_ORIGINS", "*"),
		Razorpay: RazorpayConfig{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		},
		Shiprocket: ShiprocketConfig{
			BaseURL:        getEnv("SHIPROCKET_BASE_URL", "https://apiv2.shiprocket.in/v1/external"),
			Email:          os.Getenv("SHIPROCKET_EMAIL"),
			Password:       os.Getenv("SHIPROCKET_PASSWORD"),
			PickupLocation: getEnv("SHIPROCKET_PICKUP_LOCATION", "warehouse"),
			WebhookToken:   os.Getenv("SHIPROCKET_WEBHOOK_TOKEN"),
		},
		Tracking: TrackingConfig{
			Interval:        getDuration("TRACKING_INTERVAL", 5*time.Minute),
			RequestInterval: getDuration("TRACKING_REQUEST_INTERVAL", time.Second),
			MaxRetries:      getInt("TRACKING_MAX_RETRIES", 3),
			RetryDelay:      getDuration("TRACKING_RETRY_DELAY", 30*time.Second),
		},
	}

	if cfg.Razorpay.WebhookSecret == "" {
		cfg.Razorpay.WebhookSecret = cfg.Razorpay.KeySecret
	}
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set; issued tokens are signed with an empty key")
	}
	if !cfg.Razorpay.Enabled() {
		slog.Warn("RAZORPAY_KEY_ID or RAZORPAY_KEY_SECRET missing; payment routes will answer 503")
	}
	if !cfg.Shiprocket.Enabled() {
		slog.Warn("SHIPROCKET_EMAIL or SHIPROCKET_PASSWORD missing; shipments will not be created and tracking updates stay off")
	}

	return cfg
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

func addrFromEnv() string {
	if addr := os.Getenv("APP_ADDR"); addr != "" {
		return addr
	}
	return ":" + getEnv("PORT", "8080")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw)
		return fallback
	}
	return d
}
