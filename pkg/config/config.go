package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mindfulmate/mindful/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Auth          AuthConfig
	Billing       BillingConfig
	Khalti        KhaltiConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxBodyBytes    int64

	// FrontendURL is the chat screen the payment return handler redirects to
	FrontendURL string
	// PublicURL is this server's externally reachable base URL
	PublicURL string
}

// DatabaseConfig selects the SQL driver and its connection pool settings
type DatabaseConfig struct {
	Driver          string // "postgres" or "sqlite3"
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// CacheConfig configures the chat-count read-through cache
type CacheConfig struct {
	Backend string // "memory", "redis" or "none"
	TTL     time.Duration
	Size    int
}

// AuthConfig configures the session JWT
type AuthConfig struct {
	JWTSecret  string
	CookieName string
	TokenTTL   time.Duration
	Issuer     string
}

// BillingConfig configures credit pricing and the pending purchase sweep
type BillingConfig struct {
	// UnitPrice is the price of one message credit in rupees
	UnitPrice     int64
	MaxCredits    int
	SweepSchedule string
	SweepAge      time.Duration
	SweepWorkers  int
}

// KhaltiConfig configures the payment gateway client
type KhaltiConfig struct {
	BaseURL    string
	SecretKey  string
	WebsiteURL string
	Timeout    time.Duration
	ReturnPath string
}

// RateLimitConfig configures per-user request limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Backend           string // "memory" or "redis"
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from the environment. Values from a .env
// file in the working directory (or the files named in MINDFUL_ENV_FILE)
// are applied first without overriding variables already set.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Billing:       loadBillingConfig(),
		Khalti:        loadKhaltiConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() error {
	files := splitList(os.Getenv("MINDFUL_ENV_FILE"))
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MINDFUL_HOST", "0.0.0.0"),
		Port:            getEnv("MINDFUL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MINDFUL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MINDFUL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("MINDFUL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MINDFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
		AllowedOrigins:  splitList(getEnv("MINDFUL_ALLOWED_ORIGINS", "http://localhost:5173")),
		MaxBodyBytes:    getEnvInt64("MINDFUL_MAX_BODY_BYTES", 64<<10),
		FrontendURL:     getEnv("MINDFUL_FRONTEND_URL", "http://localhost:5173/chat"),
		PublicURL:       getEnv("MINDFUL_PUBLIC_URL", "http://localhost:8080"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnv("MINDFUL_DB_DRIVER", "sqlite3"),
		URL:             getEnv("MINDFUL_DB_URL", "file:mindful.db?_foreign_keys=on&_busy_timeout=5000"),
		MaxOpenConns:    getEnvInt("MINDFUL_DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("MINDFUL_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("MINDFUL_DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          getEnv("MINDFUL_REDIS_URL", ""),
		DialTimeout:  getEnvDuration("MINDFUL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("MINDFUL_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("MINDFUL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		PoolSize:     getEnvInt("MINDFUL_REDIS_POOL_SIZE", 10),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend: strings.ToLower(getEnv("MINDFUL_CACHE_BACKEND", "memory")),
		TTL:     getEnvDuration("MINDFUL_CACHE_TTL", 30*time.Second),
		Size:    getEnvInt("MINDFUL_CACHE_SIZE", 10000),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:  getEnv("MINDFUL_JWT_SECRET", ""),
		CookieName: getEnv("MINDFUL_JWT_COOKIE", "access_token"),
		TokenTTL:   getEnvDuration("MINDFUL_JWT_TTL", time.Hour),
		Issuer:     getEnv("MINDFUL_JWT_ISSUER", "mindful"),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		UnitPrice:     getEnvInt64("MINDFUL_UNIT_PRICE", 25),
		MaxCredits:    getEnvInt("MINDFUL_MAX_CREDITS_PER_PURCHASE", 500),
		SweepSchedule: getEnv("MINDFUL_SWEEP_SCHEDULE", "@every 5m"),
		SweepAge:      getEnvDuration("MINDFUL_SWEEP_AGE", 10*time.Minute),
		SweepWorkers:  getEnvInt("MINDFUL_SWEEP_WORKERS", 4),
	}
}

func loadKhaltiConfig() KhaltiConfig {
	return KhaltiConfig{
		BaseURL:    getEnv("MINDFUL_KHALTI_BASE_URL", "https://dev.khalti.com/api/v2"),
		SecretKey:  getEnv("MINDFUL_KHALTI_SECRET_KEY", ""),
		WebsiteURL: getEnv("MINDFUL_KHALTI_WEBSITE_URL", "http://localhost:5173"),
		Timeout:    getEnvDuration("MINDFUL_KHALTI_TIMEOUT", 10*time.Second),
		ReturnPath: getEnv("MINDFUL_KHALTI_RETURN_PATH", "/api/payments/khalti/return"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("MINDFUL_RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("MINDFUL_RATE_LIMIT_PER_MINUTE", 60),
		Backend:           strings.ToLower(getEnv("MINDFUL_RATE_LIMIT_BACKEND", "memory")),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("MINDFUL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("MINDFUL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("MINDFUL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("MINDFUL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("MINDFUL_OTEL_SERVICE_NAME", "mindful-api"),
		OTelServiceVersion: getEnv("MINDFUL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("MINDFUL_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("MINDFUL_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.FrontendURL == "" {
		errs = append(errs, errors.New("frontend URL is required"))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("invalid database driver: %q (must be postgres or sqlite3)", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database URL is required"))
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis URL is required for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cache backend: %q (must be memory, redis or none)", c.Cache.Backend))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, errors.New("rate limit must be positive when enabled"))
		}
		if c.RateLimit.Backend == "redis" && c.Redis.URL == "" {
			errs = append(errs, errors.New("redis URL is required for the redis rate limit backend"))
		}
	}

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT secret must be at least 32 bytes"))
	}

	if c.Billing.UnitPrice <= 0 {
		errs = append(errs, errors.New("unit price must be positive"))
	}
	if c.Billing.MaxCredits <= 0 {
		errs = append(errs, errors.New("max credits per purchase must be positive"))
	}
	if c.Billing.SweepWorkers <= 0 {
		errs = append(errs, errors.New("sweep workers must be positive"))
	}

	if c.Khalti.SecretKey == "" {
		errs = append(errs, errors.New("khalti secret key is required"))
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ReturnURL is the absolute URL the payment gateway sends the user back to
func (c *Config) ReturnURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + c.Khalti.ReturnPath
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
