package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=development"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	BaseURL         string        `env:"BASE_URL,         default=http://localhost:8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
	Mail  MailConfig
}

type AuthConfig struct {
	JWTSecret          string        `env:"JWT_SECRET, required"`
	JWTAlgorithm       string        `env:"JWT_ALGORITHM,               default=HS256"`
	AccessTokenMinutes int           `env:"ACCESS_TOKEN_EXPIRE_MINUTES, default=30"`
	VerifyTokenTTL     time.Duration `env:"VERIFY_TOKEN_TTL,            default=1h"`
	ResetTokenTTL      time.Duration `env:"RESET_TOKEN_TTL,             default=1h"`
	SingleUseTokens    bool          `env:"SINGLE_USE_TOKENS,           default=true"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity_system"`
}

type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR,       default=localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,         default=0"`
	PoolSize  int    `env:"REDIS_POOL_SIZE,  default=10"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX, default=revoked:"`
}

type MailConfig struct {
	Workers int `env:"MAIL_WORKERS, default=2"`
	Buffer  int `env:"MAIL_BUFFER,  default=64"`
}

// IsDevelopment reports whether the service runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}

// Load reads configuration from l. Pass envconfig.OsLookuper() for the
// process environment.
func Load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// MustLoad reads configuration from the process environment and panics on
// failure.
func MustLoad() *Config {
	cfg, err := Load(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.Auth.JWTAlgorithm)
	}
	if c.Auth.AccessTokenMinutes <= 0 {
		return errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.Auth.VerifyTokenTTL <= 0 || c.Auth.ResetTokenTTL <= 0 {
		return errors.New("VERIFY_TOKEN_TTL and RESET_TOKEN_TTL must be positive")
	}
	return nil
}
