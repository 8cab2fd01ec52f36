package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_ADDR", "PORT", "APP_ENV", "NODE_ENV", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET", "RAZORPAY_WEBHOOK_SECRET", "SHIPROCKET_EMAIL", "SHIPROCKET_PASSWORD", "TRACKING_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.Razorpay.Enabled())
	assert.False(t, cfg.Shiprocket.Enabled())
	assert.Equal(t, "warehouse", cfg.Shiprocket.PickupLocation)
	assert.Equal(t, 5*time.Minute, cfg.Tracking.Interval)
	assert.Equal(t, time.Second, cfg.Tracking.RequestInterval)
	assert.Equal(t, 3, cfg.Tracking.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Tracking.RetryDelay)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("NODE_ENV", "development")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test")
	t.Setenv("RAZORPAY_KEY_SECRET", "secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "")
	t.Setenv("SHIPROCKET_EMAIL", "ops@example.com")
	t.Setenv("SHIPROCKET_PASSWORD", "pw")
	t.Setenv("TRACKING_INTERVAL", "90s")
	t.Setenv("TRACKING_MAX_RETRIES", "nope")

	cfg := Load()

	assert.Equal(t, ":5000", cfg.Addr)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Razorpay.Enabled())
	assert.Equal(t, "secret", cfg.Razorpay.WebhookSecret, "webhook secret falls back to key secret")
	assert.True(t, cfg.Shiprocket.Enabled())
	assert.Equal(t, 90*time.Second, cfg.Tracking.Interval)
	assert.Equal(t, 3, cfg.Tracking.MaxRetries)
}
