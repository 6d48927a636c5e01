package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Resend    ResendConfig
	Pesapal   PesapalConfig
	Paystack  PaystackConfig
	Checkout  CheckoutConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port    string
	Host    string
	Env     string
	BaseURL string
}

type DatabaseConfig struct {
	URL      string // Full database URL
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SessionConfig struct {
	Secret string
}

type ResendConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type PesapalConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Environment    string
	CallbackURL    string
	IPNURL         string
}

type PaystackConfig struct {
	SecretKey   string
	PublicKey   string
	Environment string
	CallbackURL string
}

// CheckoutConfig tunes draft checkout session behavior
type CheckoutConfig struct {
	SessionTTL     time.Duration
	ReminderMinAge time.Duration
}

// SchedulerConfig holds the default intervals for background jobs. Each job
// also honors a per-job env override at registration time.
type SchedulerConfig struct {
	AbandonedCartInterval  time.Duration
	CleanupInterval        time.Duration
	PendingPaymentInterval time.Duration
}

func Load() (*Config, error) {
	// Load .env files if they exist (try .env.local first, then .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	config := &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			Host:    getEnv("HOST", "localhost"),
			Env:     getEnv("ENV", "development"),
			BaseURL: getEnv("BASE_URL", "http://localhost:8080"),
		},
		Database: parseDatabaseConfig(),
		Session: SessionConfig{
			Secret: getEnv("SESSION_SECRET", "your-secret-key-change-in-production"),
		},
		Resend: ResendConfig{
			APIKey:    getEnv("RESEND_API_KEY", ""),
			FromEmail: getEnv("RESEND_FROM_EMAIL", "noreply@eventsales.com"),
			FromName:  getEnv("RESEND_FROM_NAME", "Event Sales Platform"),
		},
		Pesapal: PesapalConfig{
			ConsumerKey:    getEnv("PESAPAL_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("PESAPAL_CONSUMER_SECRET", ""),
			Environment:    getEnv("PESAPAL_ENVIRONMENT", "sandbox"),
			CallbackURL:    getEnv("PESAPAL_CALLBACK_URL", "http://localhost:8080/payment/callback"),
			IPNURL:         getEnv("PESAPAL_IPN_URL", "http://localhost:8080/payment/webhook/pesapal"),
		},
		Paystack: PaystackConfig{
			SecretKey:   getEnv("PAYSTACK_SECRET_KEY", ""),
			PublicKey:   getEnv("PAYSTACK_PUBLIC_KEY", ""),
			Environment: getEnv("PAYSTACK_ENVIRONMENT", "test"),
			CallbackURL: getEnv("PAYSTACK_CALLBACK_URL", "http://localhost:8080/payment/callback"),
		},
		Checkout: CheckoutConfig{
			SessionTTL:     getEnvAsDuration("CHECKOUT_SESSION_TTL", 24*time.Hour),
			ReminderMinAge: getEnvAsDuration("CHECKOUT_REMINDER_MIN_AGE", time.Hour),
		},
		Scheduler: SchedulerConfig{
			AbandonedCartInterval:  getEnvAsDuration("ABANDONED_CART_INTERVAL", 6*time.Hour),
			CleanupInterval:        getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour),
			PendingPaymentInterval: getEnvAsDuration("PENDING_PAYMENT_INTERVAL", 15*time.Minute),
		},
	}

	return config, nil
}

func parseDatabaseConfig() DatabaseConfig {
	// Check if DATABASE_URL is provided
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL != "" {
		return parseDatabaseURL(databaseURL)
	}

	// Fall back to individual environment variables
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "event_sales"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func parseDatabaseURL(databaseURL string) DatabaseConfig {
	config := DatabaseConfig{
		URL: databaseURL,
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		// If parsing fails, return the URL as-is
		return config
	}

	config.Host = u.Hostname()
	if u.Port() != "" {
		config.Port, _ = strconv.Atoi(u.Port())
	} else {
		config.Port = 5432 // Default PostgreSQL port
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	config.DBName = strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	config.SSLMode = query.Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}
