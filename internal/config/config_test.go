package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "STORE_TIMEOUT", "CLINIC_TIMEZONE", "OTP_TTL", "RATE_LIMIT_RPS", "CORS_ALLOWED_ORIGINS", "PORTAL_ALLOWED_ORIGINS", "USE_MEMORY_STORE", "BOOKING_HORIZON_DAYS", "TWILIO_ACCOUNT_SID"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 60*time.Second, cfg.OTPResendCooldown)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 30, cfg.BookingHorizonDays)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Nil(t, cfg.CORSAllowedOrigins)
	assert.Nil(t, cfg.PortalAllowedOrigins)
	assert.False(t, cfg.UseMemoryStore)
	assert.False(t, cfg.TwilioConfigured())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Casablanca", loc.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("USE_MEMORY_STORE", "true")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("GATEWAY_TIMEOUT", "bogus")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://rdv.example.ma, ,https://www.example.ma")
	t.Setenv("PORTAL_ALLOWED_ORIGINS", "https://portal.example.ma")
	t.Setenv("CLINIC_TIMEZONE", "Europe/Paris")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_FROM_NUMBER", "+212600000000")
	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://user@host/db", cfg.DatabaseURL)
	assert.True(t, cfg.UseMemoryStore)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout, "invalid durations fall back to the default")
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, []string{"https://rdv.example.ma", "https://www.example.ma"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []string{"https://portal.example.ma"}, cfg.PortalAllowedOrigins)
	assert.Equal(t, 3, cfg.OTPMaxAttempts)
	assert.True(t, cfg.TwilioConfigured())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Mars/Olympus"}
	_, err := cfg.Location()
	assert.Error(t, err)
}
