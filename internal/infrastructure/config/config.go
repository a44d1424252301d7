// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds all configuration for the service.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Query     QueryConfig     `mapstructure:"query"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	HTTPPort           int           `mapstructure:"http_port"`
	GRPCPort           int           `mapstructure:"grpc_port"`
	GRPCEnabled        bool          `mapstructure:"grpc_enabled"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Table           string        `mapstructure:"table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// ConnectionString returns the driver-specific data source name. An explicit
// URL always wins over the individual fields.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Driver == DriverSQLite {
		return c.Name
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Target returns a loggable description of the database without credentials.
func (c *DatabaseConfig) Target() string {
	if c.URL == "" {
		if c.Driver == DriverSQLite {
			return c.Name
		}
		return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Name)
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return c.Driver
	}
	return u.Host + u.Path
}

// QueryConfig holds limits applied to log queries.
type QueryConfig struct {
	DefaultLimit  int `mapstructure:"default_limit"`
	MaxLimit      int `mapstructure:"max_limit"`
	ExportMaxRows int `mapstructure:"export_max_rows"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Backend    string        `mapstructure:"backend"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries uint64        `mapstructure:"max_entries"` // memory backend only
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Address returns the Redis address.
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig holds HTTP rate limiting configuration.
// A non-positive RequestsPerSecond disables rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig holds the storage circuit breaker configuration.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures int           `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	PrettyJSON bool   `mapstructure:"pretty_json"`
}

// Load reads configuration from an optional .env file, an optional config
// file and environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// tableNamePattern accepts a plain or schema-qualified SQL identifier.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if !tableNamePattern.MatchString(c.Database.Table) {
		return fmt.Errorf("invalid database table name %q", c.Database.Table)
	}
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case CacheBackendRedis, CacheBackendMemory:
		default:
			return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
		}
	}
	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("invalid http port %d", c.Server.HTTPPort)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "logquery-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.env", "development")

	// Server defaults
	v.SetDefault("server.http_port", 3000)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.grpc_enabled", false)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "logs")
	v.SetDefault("database.password", "logs123")
	v.SetDefault("database.name", "logs_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.table", "logs")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_timeout", 30*time.Second)

	// Query defaults
	v.SetDefault("query.default_limit", 20)
	v.SetDefault("query.max_limit", 100)
	v.SetDefault("query.export_max_rows", 10000)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", CacheBackendRedis)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("cache.max_entries", 1000)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "logquery:")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.burst", 50)

	// Circuit breaker defaults
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.open_timeout", 30*time.Second)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "logquery-service")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.pretty_json", false)
}

func bindEnvVars(v *viper.Viper) error {
	envBindings := []struct {
		key      string
		envNames []string
	}{
		// Server
		{"server.http_port", []string{"HTTP_PORT", "PORT"}},
		{"server.grpc_port", []string{"GRPC_PORT"}},
		// Database
		{"database.driver", []string{"DATABASE_DRIVER"}},
		{"database.url", []string{"DATABASE_URL", "DB_URI"}},
		{"database.host", []string{"DATABASE_HOST"}},
		{"database.port", []string{"DATABASE_PORT"}},
		{"database.user", []string{"DATABASE_USER"}},
		{"database.password", []string{"DATABASE_PASSWORD"}},
		{"database.name", []string{"DATABASE_NAME"}},
		{"database.ssl_mode", []string{"DATABASE_SSLMODE"}},
		// Redis
		{"redis.host", []string{"REDIS_HOST"}},
		{"redis.port", []string{"REDIS_PORT"}},
		{"redis.password", []string{"REDIS_PASSWORD"}},
		// Tracing
		{"tracing.enabled", []string{"TRACING_ENABLED"}},
		{"tracing.endpoint", []string{"OTEL_EXPORTER_OTLP_ENDPOINT"}},
		// App
		{"app.env", []string{"APP_ENV"}},
		{"logger.level", []string{"LOG_LEVEL"}},
	}

	for _, binding := range envBindings {
		args := append([]string{binding.key}, binding.envNames...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env %v: %w", binding.envNames, err)
		}
	}
	return nil
}
