package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hearthhq/hearth/internal/platform"
)

// Config holds all process configuration, read once from the environment at
// startup. Validation failures are fatal: a process with a bad engine or
// storage provider must not come up.
type Config struct {
	Mode string `env:"HEARTH_MODE" envDefault:"api"`

	// Server
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"APP_PORT" envDefault:"8080"`

	// Database
	DBEngine        string        `env:"DB_ENGINE" envDefault:"sqlserver"`
	DBHost          string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort          int           `env:"DB_PORT"`
	DBName          string        `env:"DB_NAME" envDefault:"hearth"`
	DBAdminUser     string        `env:"DB_ADMIN_USER" envDefault:"admin"`
	DBAdminPassword string        `env:"DB_ADMIN_PASSWORD"`
	IndexPassword   string        `env:"HOME_INDEX_PASSWORD"`
	PasswordTmpl    string        `env:"TENANT_PASSWORD_TEMPLATE" envDefault:"{name}-home-credential"`
	QueryTimeout    time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"30s"`
	AcquireTimeout  time.Duration `env:"DB_ACQUIRE_TIMEOUT" envDefault:"5s"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5s"`

	// Redis (optional; enables login rate limiting)
	RedisURL string `env:"REDIS_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Sessions
	WebJWTSecret    string        `env:"WEB_JWT_SECRET"`
	AdminJWTSecret  string        `env:"ADMIN_JWT_SECRET"`
	AccessTokenTTL  time.Duration `env:"WEB_ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"WEB_REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Operator account for the admin API
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@hearth.local"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Storage
	StorageProvider  string        `env:"STORAGE_PROVIDER" envDefault:"local"`
	StorageTimeout   time.Duration `env:"STORAGE_TIMEOUT" envDefault:"120s"`
	StorageURLExpiry time.Duration `env:"STORAGE_URL_EXPIRY" envDefault:"168h"`
	S3Endpoint       string        `env:"S3_ENDPOINT"`
	S3AccessKey      string        `env:"S3_ACCESS_KEY"`
	S3SecretKey      string        `env:"S3_SECRET_KEY"`
	S3Bucket         string        `env:"S3_BUCKET" envDefault:"hearth-media"`
	S3Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3UseSSL         bool          `env:"S3_USE_SSL" envDefault:"true"`
	S3PublicRead     bool          `env:"S3_PUBLIC_READ" envDefault:"false"`
	LocalStorageDir  string        `env:"LOCAL_STORAGE_DIR" envDefault:"data/media"`
	PublicBaseURL    string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Push notifications (optional)
	FCMCredentialsFile string `env:"FCM_CREDENTIALS_FILE"`

	// Ops alerting (optional)
	SlackBotToken    string `env:"SLACK_BOT_TOKEN"`
	SlackOpsChannel  string `env:"SLACK_OPS_CHANNEL"`
	SlackNotifyLevel string `env:"SLACK_NOTIFY_LEVEL" envDefault:"error"`

	engine platform.Engine
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}

	engine, err := platform.ParseEngine(cfg.DBEngine)
	if err != nil {
		return nil, err
	}
	cfg.engine = engine

	if cfg.DBPort == 0 {
		switch engine {
		case platform.EngineOracle:
			cfg.DBPort = 1521
		default:
			cfg.DBPort = 1433
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !strings.Contains(c.PasswordTmpl, "{name}") {
		return fmt.Errorf("TENANT_PASSWORD_TEMPLATE must contain {name}")
	}

	switch c.StorageProvider {
	case "local":
	case "s3":
		if c.S3Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_PROVIDER=s3")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_PROVIDER=s3")
		}
	default:
		return fmt.Errorf("unsupported storage provider %q (expected s3 or local)", c.StorageProvider)
	}

	// Presigned S3 URLs cannot outlive the protocol's 7 day ceiling.
	if c.StorageURLExpiry > 7*24*time.Hour {
		c.StorageURLExpiry = 7 * 24 * time.Hour
	}

	for name, secret := range map[string]string{
		"WEB_JWT_SECRET":   c.WebJWTSecret,
		"ADMIN_JWT_SECRET": c.AdminJWTSecret,
	} {
		if secret != "" && len(secret) < 32 {
			return fmt.Errorf("%s must be at least 32 bytes", name)
		}
	}

	return nil
}

// Engine returns the validated database engine.
func (c *Config) Engine() platform.Engine {
	return c.engine
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminDSN builds the connection string for the admin principal. The admin
// pool serves the home registry, the audit log, and provisioning DDL.
func (c *Config) AdminDSN() string {
	return c.engine.DSN(c.DBHost, c.DBPort, c.DBAdminUser, c.DBAdminPassword, c.DBName)
}

// SchemaDSN builds the connection string for an arbitrary schema principal.
func (c *Config) SchemaDSN(user, password string) string {
	return c.engine.DSN(c.DBHost, c.DBPort, user, password, c.DBName)
}

// TenantPassword derives a home principal's password from the configured
// template by substituting the home name.
func (c *Config) TenantPassword(name string) string {
	return strings.ReplaceAll(c.PasswordTmpl, "{name}", name)
}

// PoolOptions returns the per-schema connection pool limits.
func (c *Config) PoolOptions() platform.PoolOptions {
	return platform.PoolOptions{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}
