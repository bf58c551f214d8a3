// Package config loads process configuration from the environment and the
// optional YAML catalog used to seed collections.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Ledger    LedgerConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int           `env:"SERVER_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=15s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig selects the store. Driver "memory" keeps everything in
// process; "postgres" requires a DSN.
type DatabaseConfig struct {
	Driver          string        `env:"DATABASE_DRIVER,default=memory"`
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=5m"`
	MigrateOnStart  bool          `env:"DATABASE_MIGRATE_ON_START,default=false"`
}

// RedisConfig enables the shared reservation store when Addr is set.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,default=0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX,default=edition_layer:"`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	Issuer    string `env:"AUTH_JWT_ISSUER"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS,default=20"`
	Burst             int     `env:"RATE_LIMIT_BURST,default=40"`
}

type CORSConfig struct {
	// AllowedOrigins is a comma separated list; "*" allows any origin.
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

// Origins splits AllowedOrigins.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type LedgerConfig struct {
	ReservationTTL time.Duration `env:"LEDGER_RESERVATION_TTL,default=2m"`
	SweepSchedule  string        `env:"LEDGER_SWEEP_SCHEDULE,default=@every 30s"`
	// AllocatorSeed fixes the allocator's random source; 0 seeds from the clock.
	AllocatorSeed uint64 `env:"ALLOCATOR_SEED,default=0"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis:     RedisConfig{KeyPrefix: "edition_layer:"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		CORS:      CORSConfig{AllowedOrigins: "*"},
		Ledger: LedgerConfig{
			ReservationTTL: 2 * time.Minute,
			SweepSchedule:  "@every 30s",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the given .env files (missing files are skipped), decodes the
// environment and validates the result.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range envFiles {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be memory or postgres, got %q", c.Database.Driver)
	}
	if c.Ledger.ReservationTTL <= 0 {
		return errors.New("LEDGER_RESERVATION_TTL must be positive")
	}
	if strings.TrimSpace(c.Ledger.SweepSchedule) == "" {
		return errors.New("LEDGER_SWEEP_SCHEDULE is required")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// UsePostgres reports whether the postgres store is configured.
func (c *Config) UsePostgres() bool {
	return strings.EqualFold(c.Database.Driver, "postgres")
}
