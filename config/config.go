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

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Identity      IdentityConfig
	Auth          AuthConfig
	Database      *DatabaseConfig // Optional: access events are recorded only when set
	Redis         *RedisConfig    // Optional: magic-link rate limiting is disabled when nil
	RateLimit     RateLimitConfig
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
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// IdentityConfig holds the external identity provider configuration.
// The provider speaks the GoTrue REST dialect (/auth/v1/*).
type IdentityConfig struct {
	URL       string        // Base URL of the provider (e.g., https://xyz.example.co)
	AnonKey   string        // Public API key sent as the apikey header
	JWTSecret string        // Optional HS256 secret for local token verification
	Timeout   time.Duration // Per-call HTTP timeout
}

// AuthConfig holds sign-in flow and cookie settings
type AuthConfig struct {
	LoginPath             string // Presence-policy redirect target
	SignInPath            string // Sign-in page the login entry point forwards to
	CallbackPath          string // Magic-link landing path
	DefaultRedirect       string // Post-sign-in destination when no redirect was requested
	SiteURL               string // Public origin used to build magic-link callback URLs
	AccessCookieName      string
	CookieSecure          bool
	CookieMaxAge          time.Duration
	ProviderFailureAsNone bool // Fold provider failures into the signed-out branch
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

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds magic-link request throttling settings
type RateLimitConfig struct {
	MagicLinkMaxPerEmail int
	MagicLinkMaxPerIP    int
	MagicLinkWindow      time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Identity: IdentityConfig{
			URL:       strings.TrimSuffix(getEnv("IDENTITY_URL", ""), "/"),
			AnonKey:   getEnv("IDENTITY_ANON_KEY", ""),
			JWTSecret: getEnv("IDENTITY_JWT_SECRET", ""),
			Timeout:   getEnvAsDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			LoginPath:             getEnv("AUTH_LOGIN_PATH", "/login"),
			SignInPath:            getEnv("AUTH_SIGN_IN_PATH", "/auth/sign-in"),
			CallbackPath:          getEnv("AUTH_CALLBACK_PATH", "/auth/callback"),
			DefaultRedirect:       getEnv("AUTH_DEFAULT_REDIRECT", "/dashboard"),
			SiteURL:               strings.TrimSuffix(getEnv("SITE_URL", "http://localhost:8080"), "/"),
			AccessCookieName:      getEnv("AUTH_ACCESS_COOKIE", "portal-access-token"),
			CookieSecure:          getEnvAsBool("AUTH_COOKIE_SECURE", false),
			CookieMaxAge:          getEnvAsDuration("AUTH_COOKIE_MAX_AGE", 7*24*time.Hour),
			ProviderFailureAsNone: getEnvAsBool("AUTH_PROVIDER_FAILURE_AS_SIGNED_OUT", false),
		},
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		RateLimit: RateLimitConfig{
			MagicLinkMaxPerEmail: getEnvAsInt("MAGIC_LINK_MAX_PER_EMAIL", 5),
			MagicLinkMaxPerIP:    getEnvAsInt("MAGIC_LINK_MAX_PER_IP", 20),
			MagicLinkWindow:      getEnvAsDuration("MAGIC_LINK_WINDOW", time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.IsProduction() {
		cfg.Auth.CookieSecure = getEnvAsBool("AUTH_COOKIE_SECURE", true)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.Identity.URL == "" {
			return fmt.Errorf("identity provider URL is required in production")
		}
		if c.Identity.AnonKey == "" {
			return fmt.Errorf("identity provider anon key is required in production")
		}
	}
	if c.Identity.URL != "" {
		if _, err := url.ParseRequestURI(c.Identity.URL); err != nil {
			return fmt.Errorf("invalid IDENTITY_URL: %w", err)
		}
	}

	for name, path := range map[string]string{
		"login path":       c.Auth.LoginPath,
		"sign-in path":     c.Auth.SignInPath,
		"callback path":    c.Auth.CallbackPath,
		"default redirect": c.Auth.DefaultRedirect,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /: %q", name, path)
		}
	}
	if c.Auth.AccessCookieName == "" {
		return fmt.Errorf("auth cookie name is required")
	}

	if c.RateLimit.MagicLinkWindow <= 0 {
		return fmt.Errorf("magic link window must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
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
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "portal"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "portal"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis config from REDIS_ADDR. Returns nil when not set.
func loadRedisConfig() *RedisConfig {
	addr := getEnv("REDIS_ADDR", "")
	if addr == "" {
		return nil
	}
	return &RedisConfig{
		Addr:     addr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
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

// getEnvAsList splits a comma-separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
