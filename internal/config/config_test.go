package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://setrag@localhost/setrag?sslmode=disable")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, devJWTSecret, cfg.JWT.Secret)
		assert.Equal(t, 20, cfg.Booking.HoldMinutes)
		assert.Equal(t, "XAF", cfg.Booking.Currency)
		assert.Equal(t, 60*time.Minute, cfg.Booking.PaymentTimeout)
		assert.Equal(t, 30*time.Second, cfg.Ebilling.Timeout)
		assert.Equal(t, "booking.events", cfg.AMQP.Exchange)
		assert.Equal(t, "10-M", cfg.RateLimit.Booking)
		assert.False(t, cfg.HoldSweep.Enabled)
		assert.False(t, cfg.Ebilling.HasCredentials())
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://setrag@localhost/setrag")
		t.Setenv("EBILLING_BASE_URL", "https://stg.billing-easy.net/")
		t.Setenv("EBILLING_TIMEOUT", "45")
		t.Setenv("PAYMENT_TIMEOUT", "90m")
		t.Setenv("HOLD_SWEEP_ENABLED", "true")
		t.Setenv("DB_MAX_CONNECTIONS", "many")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://setrag.ga, https://www.setrag.ga,")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "https://stg.billing-easy.net", cfg.Ebilling.BaseURL)
		assert.Equal(t, 45*time.Second, cfg.Ebilling.Timeout)
		assert.Equal(t, 90*time.Minute, cfg.Booking.PaymentTimeout)
		assert.True(t, cfg.HoldSweep.Enabled)
		assert.Equal(t, 25, cfg.Database.MaxConnections)
		assert.Equal(t, []string{"https://setrag.ga", "https://www.setrag.ga"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("Database is required", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Production needs a real JWT secret", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://setrag@localhost/setrag")
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Environment: "production"},
			Database: DatabaseConfig{URL: "postgres://localhost/setrag"},
			JWT:      JWTConfig{Secret: "a-long-production-secret"},
			Booking:  BookingConfig{HoldMinutes: 20, DefaultSeatCount: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Valid", func(*Config) {}, ""},
		{"Dev secret in production", func(c *Config) { c.JWT.Secret = devJWTSecret }, "JWT_SECRET"},
		{"Non-positive hold", func(c *Config) { c.Booking.HoldMinutes = 0 }, "BOOKING_HOLD_MINUTES"},
		{"No seats", func(c *Config) { c.Booking.DefaultSeatCount = -1 }, "DEFAULT_SEAT_COUNT"},
		{"Merchant without callback", func(c *Config) {
			c.Ebilling = EbillingConfig{Username: "setrag", SharedKey: "k"}
		}, "EBILLING_CALLBACK_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
