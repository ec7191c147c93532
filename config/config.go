package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/upb/tenant-gateway/internal/secrets"
)

// ErrDevModeInProduction is returned when the development auth bypass is enabled in production
var ErrDevModeInProduction = errors.New("AUTH_DEV_MODE must not be enabled in production")

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Identity      IdentityConfig
	Auth          AuthConfig
	Secrets       SecretsConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// IdentityConfig holds the trusted token issuer settings
type IdentityConfig struct {
	// TenantID is the directory identifier of the issuer. The issuer and JWKS
	// URLs are derived from it unless overridden.
	TenantID     string
	ClientID     string // expected audience
	Authority    string
	IssuerURL    string
	JWKSURL      string
	KeyCacheTTL  time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gt=0"`
	ClockSkew    time.Duration `validate:"gte=0,lte=5m"`
}

// AuthConfig holds request authorization settings
type AuthConfig struct {
	// DevMode enables the fixed fallback identity and the no-tenant relaxation.
	// It is read once at startup and never in production.
	DevMode        bool
	DevEmail       string `validate:"omitempty,email"`
	DevDisplayName string
	// BaseDomain, when set, restricts subdomain tenant resolution to hosts under it.
	BaseDomain string
}

// SecretsConfig holds tenant secret encryption settings
type SecretsConfig struct {
	MasterKey  string
	KDFWorkers int `validate:"gt=0"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required,oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=json text"`
	MetricsEnabled bool
	ServiceName    string
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
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Database: loadDatabaseConfig(),
		Identity: IdentityConfig{
			TenantID:     getEnv("IDENTITY_TENANT_ID", ""),
			ClientID:     getEnv("IDENTITY_CLIENT_ID", ""),
			Authority:    getEnv("IDENTITY_AUTHORITY", "https://login.microsoftonline.com"),
			IssuerURL:    getEnv("IDENTITY_ISSUER_URL", ""),
			JWKSURL:      getEnv("IDENTITY_JWKS_URL", ""),
			KeyCacheTTL:  getEnvAsDuration("IDENTITY_KEY_CACHE_TTL", 24*time.Hour),
			FetchTimeout: getEnvAsDuration("IDENTITY_KEY_FETCH_TIMEOUT", 5*time.Second),
			ClockSkew:    getEnvAsDuration("IDENTITY_CLOCK_SKEW", 60*time.Second),
		},
		Auth: AuthConfig{
			DevMode:        getEnvAsBool("AUTH_DEV_MODE", false),
			DevEmail:       getEnv("AUTH_DEV_EMAIL", "dev@localhost.dev"),
			DevDisplayName: getEnv("AUTH_DEV_DISPLAY_NAME", "Local Developer"),
			BaseDomain:     getEnv("TENANT_BASE_DOMAIN", ""),
		},
		Secrets: SecretsConfig{
			MasterKey:  getEnv("SECRETS_MASTER_KEY", ""),
			KDFWorkers: getEnvAsInt("SECRETS_KDF_WORKERS", runtime.NumCPU()),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			ServiceName:    getEnv("SERVICE_NAME", "tenant-gateway"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.IsProduction() {
		if c.Auth.DevMode {
			return ErrDevModeInProduction
		}
		if c.Identity.ClientID == "" {
			return fmt.Errorf("identity client ID is required in production")
		}
		if c.Identity.TenantID == "" && (c.Identity.IssuerURL == "" || c.Identity.JWKSURL == "") {
			return fmt.Errorf("identity tenant ID (or explicit issuer and JWKS URLs) is required in production")
		}
	}

	if len(c.Secrets.MasterKey) < secrets.MinMasterKeyLength {
		return fmt.Errorf("SECRETS_MASTER_KEY: %w", secrets.ErrWeakMasterKey)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Issuer returns the expected token issuer
func (c *IdentityConfig) Issuer() string {
	if c.IssuerURL != "" {
		return c.IssuerURL
	}
	return fmt.Sprintf("%s/%s/v2.0", strings.TrimRight(c.Authority, "/"), c.TenantID)
}

// KeySetURL returns the issuer's signing key endpoint
func (c *IdentityConfig) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return fmt.Sprintf("%s/%s/discovery/v2.0/keys", strings.TrimRight(c.Authority, "/"), c.TenantID)
}

// Configured reports whether enough is set to verify tokens
func (c *IdentityConfig) Configured() bool {
	return c.ClientID != "" && (c.TenantID != "" || (c.IssuerURL != "" && c.JWKSURL != ""))
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
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", false),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "dev")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "tenant_gateway")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
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

func getEnvAsSlice(key string, defaultValue []string) []string {
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
	return out
}
