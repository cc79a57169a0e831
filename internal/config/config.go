package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// devJWTSecret matches the users service default so local tokens validate out of the box
const devJWTSecret = "dev-secret-change-me"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Ebilling  EbillingConfig
	Booking   BookingConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	HoldSweep HoldSweepConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	LogFile     string // optional rotating log file, in addition to stdout
}

// IsProduction reports whether the server runs in production
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds the shared secret used to validate caller tokens
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// EbillingConfig holds the billing-easy.net merchant configuration
type EbillingConfig struct {
	BaseURL            string
	Username           string
	SharedKey          string // SECRET - never expose to client
	CallbackURL        string
	RedirectURLSuccess string
	RedirectURLFailure string
	ExpiryPeriod       int // minutes the bill stays payable
	Timeout            time.Duration
	ForceSimulation    bool
}

// HasCredentials reports whether merchant credentials are set
func (e EbillingConfig) HasCredentials() bool {
	return e.Username != "" && e.SharedKey != ""
}

// BookingConfig holds booking flow settings
type BookingConfig struct {
	HoldMinutes      int
	Currency         string
	PaymentTimeout   time.Duration
	DefaultSeatCount int
}

// RedisConfig holds the optional idempotency cache configuration
type RedisConfig struct {
	URL            string
	IdempotencyTTL time.Duration
}

// AMQPConfig holds the optional event broker configuration
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// SMTPConfig holds the mailer configuration used by the notifier
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// RateLimitConfig holds per-route rate formats such as "10-M"
type RateLimitConfig struct {
	Booking  string
	Callback string
}

// HoldSweepConfig controls the optional background hold sweep
type HoldSweepConfig struct {
	Enabled  bool
	Schedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFile:     getEnv("LOG_FILE", ""),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:        getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Ebilling: EbillingConfig{
			BaseURL:            strings.TrimRight(getEnv("EBILLING_BASE_URL", "https://lab.billing-easy.net"), "/"),
			Username:           getEnv("EBILLING_USERNAME", ""),
			SharedKey:          getEnv("EBILLING_SHARED_KEY", ""),
			CallbackURL:        getEnv("EBILLING_CALLBACK_URL", ""),
			RedirectURLSuccess: getEnv("EBILLING_REDIRECT_URL_SUCCESS", ""),
			RedirectURLFailure: getEnv("EBILLING_REDIRECT_URL_FAILURE", ""),
			ExpiryPeriod:       getEnvAsInt("EBILLING_EXPIRY_PERIOD", 60),
			Timeout:            getEnvAsDuration("EBILLING_TIMEOUT", 30*time.Second),
			ForceSimulation:    getEnvAsBool("PAYMENT_FORCE_SIMULATION", false),
		},
		Booking: BookingConfig{
			HoldMinutes:      getEnvAsInt("BOOKING_HOLD_MINUTES", 20),
			Currency:         getEnv("BOOKING_CURRENCY", "XAF"),
			PaymentTimeout:   getEnvAsDuration("PAYMENT_TIMEOUT", 60*time.Minute),
			DefaultSeatCount: getEnvAsInt("DEFAULT_SEAT_COUNT", 100),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_CACHE_TTL", 24*time.Hour),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "booking.events"),
			Queue:    getEnv("AMQP_QUEUE", "booking.notifications"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "SETRAG <no-reply@setrag.ga>"),
		},
		RateLimit: RateLimitConfig{
			Booking:  getEnv("RATE_LIMIT_BOOKING", "10-M"),
			Callback: getEnv("RATE_LIMIT_CALLBACK", "120-M"),
		},
		HoldSweep: HoldSweepConfig{
			Enabled:  getEnvAsBool("HOLD_SWEEP_ENABLED", false),
			Schedule: getEnv("HOLD_SWEEP_SCHEDULE", "@every 1m"),
		},
	}

	if config.JWT.Secret == "" && !config.Server.IsProduction() {
		config.JWT.Secret = devJWTSecret
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Server.IsProduction() && c.JWT.Secret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed in production")
	}

	if c.Booking.HoldMinutes <= 0 {
		return fmt.Errorf("BOOKING_HOLD_MINUTES must be positive")
	}

	if c.Booking.DefaultSeatCount <= 0 {
		return fmt.Errorf("DEFAULT_SEAT_COUNT must be positive")
	}

	// A configured merchant needs somewhere to receive callbacks
	if c.Ebilling.Username != "" && c.Ebilling.SharedKey != "" && c.Ebilling.CallbackURL == "" && c.Server.IsProduction() {
		return fmt.Errorf("EBILLING_CALLBACK_URL is required when eBilling credentials are set")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("30s", "5m") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
