package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingWebhookSecret is returned when META_APP_SECRET is not configured.
var ErrMissingWebhookSecret = errors.New("missing_webhook_secret")

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// MetaAppSecret signs inbound lead webhooks.
	MetaAppSecret string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RateLimitBackend string

	RabbitMQURL           string
	EnrichmentMaxAttempts int
	DataRetentionDays     int
	SchedulerJobs         string

	Seed SeedConfig
}

// SeedConfig gates development fixtures.
type SeedConfig struct {
	Allow         bool
	AdminPassword string
	SalesPassword string
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	backend := strings.ToLower(strings.TrimSpace(getenv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)))
	if backend != RateLimitBackendRedis {
		backend = RateLimitBackendMemory
	}

	return Config{
		AppName:               getenv("APP_SERVICE", "opensmile"),
		AppVersion:            getenv("APP_VERSION", "0.1.0"),
		Environment:           environment,
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure:      authCookieSecure,
		LogLevel:              strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:           getenvBool("OTEL_ENABLED", true),
		OTLPEndpoint:          strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:          strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:     getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:                getenv("DATABASE_TYPE", "postgres"),
		DBHost:                getenv("DATABASE_HOST", "localhost"),
		DBPort:                getenv("DATABASE_PORT", "5432"),
		DBName:                getenv("DATABASE_NAME", "opensmile"),
		DBUser:                getenv("DATABASE_USER", "postgres"),
		DBPassword:            getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:             getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:         getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:         getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:     getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		MetaAppSecret:         strings.TrimSpace(os.Getenv("META_APP_SECRET")),
		RedisAddr:             strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("REDIS_DB", 0),
		RateLimitBackend:      backend,
		RabbitMQURL:           strings.TrimSpace(getenv("RABBITMQ_URL", "")),
		EnrichmentMaxAttempts: getenvInt("ENRICHMENT_MAX_ATTEMPTS", 3),
		DataRetentionDays:     getenvInt("DATA_RETENTION_DAYS", 90),
		SchedulerJobs:         getenv("SCHEDULER_JOBS", ""),
		Seed: SeedConfig{
			Allow:         getenvBool("ALLOW_SEEDING", false),
			AdminPassword: strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD")),
			SalesPassword: strings.TrimSpace(os.Getenv("SEED_SALES_PASSWORD")),
		},
	}
}

// Validate reports configuration that must stop the process from starting.
func (c Config) Validate() error {
	if c.MetaAppSecret == "" {
		return ErrMissingWebhookSecret
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// DataRetention returns the retention period for call recordings.
func (c Config) DataRetention() time.Duration {
	days := c.DataRetentionDays
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
