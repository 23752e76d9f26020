package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"SERVER_PORT"`
	Host            string        `mapstructure:"SERVER_HOST"`
	Env             string        `mapstructure:"ENV"`
	ReadTimeout     time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SERVER_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `mapstructure:"DATABASE_AUTO_MIGRATE"`
	TxTimeout       time.Duration `mapstructure:"DATABASE_TX_TIMEOUT"`
}

type RedisConfig struct {
	URL      string        `mapstructure:"REDIS_URL"`
	Host     string        `mapstructure:"REDIS_HOST"`
	Port     string        `mapstructure:"REDIS_PORT"`
	Password string        `mapstructure:"REDIS_PASSWORD"`
	DB       int           `mapstructure:"REDIS_DB"`
	CacheTTL time.Duration `mapstructure:"REDIS_CACHE_TTL"`
}

type SchedulerConfig struct {
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`
	Timezone          string `mapstructure:"SCHEDULER_TIMEZONE"`
	Concurrency       int    `mapstructure:"RECONCILE_CONCURRENCY"`
	Repair            bool   `mapstructure:"RECONCILE_REPAIR"`
	MetricsAddr       string `mapstructure:"SCHEDULER_METRICS_ADDR"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`
	MaxTerms        int    `mapstructure:"MAX_TERMS"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVER_PORT":                "8080",
	"SERVER_HOST":                "0.0.0.0",
	"ENV":                        "development",
	"SERVER_READ_TIMEOUT":        "15s",
	"SERVER_WRITE_TIMEOUT":       "15s",
	"SERVER_SHUTDOWN_TIMEOUT":    "30s",
	"DATABASE_URL":               "",
	"DATABASE_HOST":              "",
	"DATABASE_PORT":              "5432",
	"DATABASE_NAME":              "loan_ledger",
	"DATABASE_USER":              "",
	"DATABASE_PASSWORD":          "",
	"DATABASE_SSLMODE":           "disable",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "5m",
	"DATABASE_AUTO_MIGRATE":      false,
	"DATABASE_TX_TIMEOUT":        "5s",
	"REDIS_URL":                  "",
	"REDIS_HOST":                 "",
	"REDIS_PORT":                 "6379",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"REDIS_CACHE_TTL":            "10m",
	"RECONCILE_SCHEDULE":         "0 0 2 * * *",
	"SCHEDULER_TIMEZONE":         "UTC",
	"RECONCILE_CONCURRENCY":      4,
	"RECONCILE_REPAIR":           false,
	"SCHEDULER_METRICS_ADDR":     ":9091",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "json",
	"DEFAULT_CURRENCY":           "VND",
	"MAX_TERMS":                  360,
	"HEALTH_CHECK_TIMEOUT":       "5s",
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be greater than 0")
	}

	if c.Database.TxTimeout <= 0 {
		return fmt.Errorf("DATABASE_TX_TIMEOUT must be greater than 0")
	}

	if c.Business.MaxTerms <= 0 {
		return fmt.Errorf("MAX_TERMS must be greater than 0")
	}

	if len(c.Business.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}

	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be greater than 0")
	}

	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.Scheduler.ReconcileSchedule); err != nil {
		return fmt.Errorf("RECONCILE_SCHEDULE must be a valid cron spec: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid time zone: %w", err)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be greater than 0")
	}

	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Host != ""
}

// Addr returns host:port of the Redis server.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// GetSchedulerLocation returns the scheduler time zone
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
