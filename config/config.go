package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is the development fallback signing secret. It is public
// knowledge, so Validate refuses it in production.
const DefaultJWTSecret = "dev-only-insecure-jwt-secret-change-me"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: when nil users live in memory
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds session token, cookie and route gate settings
type AuthConfig struct {
	JWTSecret          string
	SessionTTL         time.Duration
	CookieSecure       bool
	LoginPath          string
	DefaultLandingPath string
	ProtectedPrefixes  []string
	SeedAdminEmail     string
	SeedAdminPassword  string
}

// RateLimitConfig holds login throttling configuration
type RateLimitConfig struct {
	LoginRate string // ulule/limiter format, e.g. "5-M"
	RedisURL  string // Optional: shared limiter store across instances
}

// CORSConfig holds cross-origin settings for the JSON API
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	environment := getEnv("ENVIRONMENT", "development")
	production := environment == "production" || environment == "prod"

	cfg := &Config{
		Environment: environment,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),

			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			CookieSecure:       getEnvAsBool("AUTH_COOKIE_SECURE", production),
			LoginPath:          getEnv("LOGIN_PATH", "/giris"),
			DefaultLandingPath: getEnv("DEFAULT_LANDING_PATH", "/"),
			ProtectedPrefixes:  getEnvAsList("PROTECTED_PREFIXES", []string{"/profil", "/egitimler", "/panel", "/ayarlar"}),
			SeedAdminEmail:     getEnv("SEED_ADMIN_EMAIL", ""),
			SeedAdminPassword:  getEnv("SEED_ADMIN_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			LoginRate: getEnv("LOGIN_RATE_LIMIT", "10-M"),
			RedisURL:  getEnv("REDIS_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// The signing secret must be explicit in production
	if c.IsProduction() {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == DefaultJWTSecret {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
		}
		if c.Database == nil {
			return fmt.Errorf("database configuration required in production: set DATABASE_URL or DB_HOST")
		}
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be > 0")
	}
	if !strings.HasPrefix(c.Auth.LoginPath, "/") {
		return fmt.Errorf("login path must be absolute, got %q", c.Auth.LoginPath)
	}
	for _, prefix := range c.Auth.ProtectedPrefixes {
		if !strings.HasPrefix(prefix, "/") || prefix == "/" {
			return fmt.Errorf("invalid protected prefix %q", prefix)
		}
		if c.Auth.LoginPath == prefix || strings.HasPrefix(c.Auth.LoginPath, prefix+"/") {
			return fmt.Errorf("login path %q must not be protected by %q", c.Auth.LoginPath, prefix)
		}
	}

	if c.RateLimit.LoginRate == "" {
		return fmt.Errorf("login rate limit is required")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// SigningSecret returns the configured secret, falling back to the insecure
// development default. The second result reports whether the fallback was used.
func (c *AuthConfig) SigningSecret() (string, bool) {
	if c.JWTSecret == "" {
		return DefaultJWTSecret, true
	}
	return c.JWTSecret, false
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set.
func loadDatabaseConfig() *DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return &pool
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}

	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return &pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
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
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
