package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Archive drivers.
const (
	ArchiveFS = "fs"
	ArchiveS3 = "s3"
)

const defaultJWTSigningKey = "dev-secret-key-change-in-production"

// Server captures process-level configuration for cmd/server.
type Server struct {
	Addr           string        `env:"MINIMIZER_ADDR" envDefault:":8080"`
	StoreDriver    string        `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"minimizer.db"`
	JWTSigningKey  string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	TrialTxTimeout time.Duration `env:"TRIAL_TX_TIMEOUT" envDefault:"5s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`

	HTTP      HTTPConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Archive   ArchiveConfig
	RateLimit RateLimitConfig
}

// HTTPConfig bounds how long the API server spends on one connection.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RateLimitConfig throttles the account endpoints per client IP. A zero
// limit disables throttling.
type RateLimitConfig struct {
	AuthLimit  int           `env:"RATE_LIMIT_AUTH" envDefault:"20"`
	AuthWindow time.Duration `env:"RATE_LIMIT_AUTH_WINDOW" envDefault:"1m"`
}

// RedisConfig enables the distributed trial lease and shared token
// revocation. Empty URL leaves both in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	LockTTL      time.Duration `env:"REDIS_LOCK_TTL" envDefault:"10s"`
}

// KafkaConfig enables the audit outbox relay. It requires the postgres driver.
type KafkaConfig struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string        `env:"KAFKA_TOPIC" envDefault:"minimizer.audit"`
	RelayInterval time.Duration `env:"KAFKA_RELAY_INTERVAL" envDefault:"2s"`
	BatchSize     int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
}

// ArchiveConfig selects where trial archive bundles are written.
type ArchiveConfig struct {
	Driver    string `env:"ARCHIVE_DRIVER" envDefault:"fs"`
	Dir       string `env:"ARCHIVE_DIR" envDefault:"archive"`
	Bucket    string `env:"ARCHIVE_BUCKET"`
	Region    string `env:"ARCHIVE_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ARCHIVE_ENDPOINT"`
	PathStyle bool   `env:"ARCHIVE_PATH_STYLE"`

	// Static credentials for S3-compatible endpoints. When empty the default
	// AWS credential chain applies.
	AccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"ARCHIVE_SECRET_ACCESS_KEY"`
}

// FromEnv loads an optional .env file and parses the environment.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot run with.
func (c Server) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if len(c.Kafka.Brokers) > 0 && c.StoreDriver != DriverPostgres {
		return errors.New("KAFKA_BROKERS requires STORE_DRIVER=postgres")
	}
	switch c.Archive.Driver {
	case ArchiveFS:
	case ArchiveS3:
		if c.Archive.Bucket == "" {
			return errors.New("ARCHIVE_BUCKET is required for the s3 archive")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_DRIVER %q", c.Archive.Driver)
	}
	if c.RateLimit.AuthLimit > 0 && c.RateLimit.AuthWindow <= 0 {
		return errors.New("RATE_LIMIT_AUTH_WINDOW must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	for name, d := range map[string]time.Duration{
		"HTTP_READ_HEADER_TIMEOUT": c.HTTP.ReadHeaderTimeout,
		"HTTP_READ_TIMEOUT":        c.HTTP.ReadTimeout,
		"HTTP_WRITE_TIMEOUT":       c.HTTP.WriteTimeout,
		"HTTP_IDLE_TIMEOUT":        c.HTTP.IdleTimeout,
		"HTTP_SHUTDOWN_TIMEOUT":    c.HTTP.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.TrialTxTimeout <= 0 {
		return errors.New("TRIAL_TX_TIMEOUT must be positive")
	}
	if c.Redis.URL != "" {
		// The trial lease is not renewed, so it must outlive the transaction.
		if c.Redis.LockTTL <= 0 {
			return errors.New("REDIS_LOCK_TTL must be positive")
		}
		if c.Redis.LockTTL <= c.TrialTxTimeout {
			return fmt.Errorf("REDIS_LOCK_TTL (%s) must exceed TRIAL_TX_TIMEOUT (%s)",
				c.Redis.LockTTL, c.TrialTxTimeout)
		}
	}
	return nil
}

// UsingDefaultSigningKey reports whether the development signing key is in use.
func (c Server) UsingDefaultSigningKey() bool {
	return c.JWTSigningKey == defaultJWTSigningKey
}
