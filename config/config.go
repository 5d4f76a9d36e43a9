package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	HTTP        ServerConfig
	MySQL       MySQLConfig
	Log         LogConfig
	Session     SessionConfig
	Stripe      StripeConfig
	Memberships MembershipsConfig
	Jobs        JobsConfig
}

type AppConfig struct {
	ServiceName string
	BaseURL     string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type SessionConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// MembershipsConfig holds the paid tier catalog. Prices are cents in a single
// configured currency.
type MembershipsConfig struct {
	Currency           string
	GoldPriceCents     int64
	DiamondPriceCents  int64
	PlatinumPriceCents int64

	SuccessURL string
	CancelURL  string

	PendingTimeout      time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval     time.Duration
	ExpirePendingInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	sessionSecret := os.Getenv("SESSION_JWT_SECRET")
	if sessionSecret == "" {
		return nil, errors.New("SESSION_JWT_SECRET environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "memberships-service"),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Session: SessionConfig{
			JWTSecret: sessionSecret,
			TokenTTL:  getMinutesEnv("SESSION_TOKEN_TTL_MINUTES", 60*time.Minute),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Memberships: MembershipsConfig{
			Currency:            getEnv("MEMBERSHIPS_CURRENCY", "USD"),
			GoldPriceCents:      getInt64Env("MEMBERSHIPS_GOLD_PRICE_CENTS", 999),
			DiamondPriceCents:   getInt64Env("MEMBERSHIPS_DIAMOND_PRICE_CENTS", 1999),
			PlatinumPriceCents:  getInt64Env("MEMBERSHIPS_PLATINUM_PRICE_CENTS", 4999),
			SuccessURL:          getEnv("MEMBERSHIPS_SUCCESS_URL", ""),
			CancelURL:           getEnv("MEMBERSHIPS_CANCEL_URL", ""),
			PendingTimeout:      getMinutesEnv("MEMBERSHIPS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			ReconcileStaleAfter: getMinutesEnv("MEMBERSHIPS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("MEMBERSHIPS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:     getMinutesEnv("MEMBERSHIPS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			ExpirePendingInterval: getMinutesEnv("MEMBERSHIPS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
