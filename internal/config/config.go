// Package config loads walletauth settings from WALLETAUTH_* environment variables.
package config

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/layer-3/walletauth/core"
)

const (
	// Prefix is prepended to every client variable name
	Prefix = "WALLETAUTH_"
	// DevPrefix is prepended to every reference backend variable name
	DevPrefix = "WALLETAUTH_DEV_"
)

// Config is the client configuration
type Config struct {
	BackendURL string `env:"BACKEND_URL" validate:"required,url"`
	AuthLevel  string `env:"AUTH_LEVEL, default=pseudonymous" validate:"oneof=pseudonymous owner employee"`

	WalletSecretKey string `env:"WALLET_SECRET_KEY" validate:"required,hexadecimal"`
	WalletPublicKey string `env:"WALLET_PUBLIC_KEY" validate:"required,hexadecimal"`
	AuthSecretKey   string `env:"AUTH_SECRET_KEY"   validate:"required,hexadecimal"`
	AuthPublicKey   string `env:"AUTH_PUBLIC_KEY"   validate:"required,hexadecimal"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT, default=20s" validate:"gt=0"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	RedisURL   string        `env:"REDIS_URL"                validate:"omitempty,url"`
	RefreshTTL time.Duration `env:"REFRESH_TTL, default=120h" validate:"gt=0"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// Level returns the configured auth level
func (c *Config) Level() (core.AuthLevel, error) {
	return core.ParseAuthLevel(c.AuthLevel)
}

// WalletKeyPair returns the wallet key pair
func (c *Config) WalletKeyPair() core.KeyPair {
	return core.KeyPair{SecretKey: c.WalletSecretKey, PublicKey: c.WalletPublicKey}
}

// AuthKeyPair returns the auth key pair
func (c *Config) AuthKeyPair() core.KeyPair {
	return core.KeyPair{SecretKey: c.AuthSecretKey, PublicKey: c.AuthPublicKey}
}

// DevServerConfig configures the reference backend
type DevServerConfig struct {
	ListenAddr string `env:"LISTEN_ADDR, default=:9000" validate:"required"`

	ChallengeTTL time.Duration `env:"CHALLENGE_TTL, default=5m"   validate:"gt=0"`
	PreparedTTL  time.Duration `env:"PREPARED_TTL, default=5m"    validate:"gt=0"`
	AccessTTL    time.Duration `env:"ACCESS_TTL, default=5m"      validate:"gt=0"`
	RefreshTTL   time.Duration `env:"REFRESH_TTL, default=120h"   validate:"gt=0"`

	// RedisURL keeps spent token ids in Redis instead of memory when set
	RedisURL string `env:"REDIS_URL" validate:"omitempty,url"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`
}

// Load reads the client configuration from the environment
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the client configuration from l
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := process(ctx, &cfg, envconfig.PrefixLookuper(Prefix, l)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDevServer reads the reference backend configuration from the environment
func LoadDevServer(ctx context.Context) (*DevServerConfig, error) {
	return LoadDevServerWith(ctx, envconfig.OsLookuper())
}

// LoadDevServerWith reads the reference backend configuration from l
func LoadDevServerWith(ctx context.Context, l envconfig.Lookuper) (*DevServerConfig, error) {
	var cfg DevServerConfig
	if err := process(ctx, &cfg, envconfig.PrefixLookuper(DevPrefix, l)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func process(ctx context.Context, target any, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   target,
		Lookuper: l,
	}); err != nil {
		return core.WrapInvalidInput(err, "failed to load configuration")
	}
	if err := validator.New().Struct(target); err != nil {
		return core.WrapInvalidInput(err, "invalid configuration")
	}
	return nil
}
