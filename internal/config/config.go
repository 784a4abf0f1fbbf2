package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // clinic zones resolve on slim images

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	StaffJWTSecret       string
	CORSAllowedOrigins   []string
	PortalAllowedOrigins []string
	RateLimitRPS         float64
	RateLimitBurst       int

	StoreTimeout       time.Duration
	GatewayTimeout     time.Duration
	ClinicName         string
	ClinicTimezone     string
	BookingHorizonDays int

	OTPTTL            time.Duration
	OTPResendCooldown time.Duration
	OTPMaxAttempts    int

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	GeminiAPIKey  string
	GeminiModelID string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is read first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		StaffJWTSecret:       getEnv("STAFF_JWT_SECRET", ""),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		PortalAllowedOrigins: getEnvAsList("PORTAL_ALLOWED_ORIGINS", nil),
		RateLimitRPS:         getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 10),

		StoreTimeout:       getEnvAsDuration("STORE_TIMEOUT", 3*time.Second),
		GatewayTimeout:     getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
		ClinicName:         getEnv("CLINIC_NAME", ""),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "Africa/Casablanca"),
		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 30),

		OTPTTL:            getEnvAsDuration("OTP_TTL", 10*time.Minute),
		OTPResendCooldown: getEnvAsDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
		OTPMaxAttempts:    getEnvAsInt("OTP_MAX_ATTEMPTS", 5),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
	}
}

// Location resolves the clinic timezone. All schedule rules are civil times
// in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// TwilioConfigured reports whether SMS delivery credentials are present.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
