// Package config loads the sipcard client settings from SIPCARD_* variables.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	APIBaseURL string `env:"API_BASE_URL, default=http://localhost:8080"`
	LogLevel   string `env:"LOG_LEVEL,    default=warn"`

	Session SessionConfig
	Store   StoreConfig

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT, default=15s"`
}

type SessionConfig struct {
	// ExpiryGrace treats tokens as expired this much earlier than the server
	// says. Raise it when device clocks drift.
	ExpiryGrace    time.Duration `env:"SESSION_EXPIRY_GRACE, default=0s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT,      default=30s"`
}

type StoreConfig struct {
	// Path of the encrypted token file. Empty means the user config dir.
	Path       string `env:"STORE_PATH"`
	Passphrase string `env:"STORE_PASSPHRASE"`
}

// Load reads configuration from the environment.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("SIPCARD_", l),
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("config: SIPCARD_API_BASE_URL %q is not an absolute url", cfg.APIBaseURL)
	}
	if cfg.Session.ExpiryGrace < 0 {
		return nil, fmt.Errorf("config: SIPCARD_SESSION_EXPIRY_GRACE must not be negative")
	}
	if cfg.Store.Path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve token store path: %w", err)
		}
		cfg.Store.Path = filepath.Join(dir, "sipcard", "tokens.bin")
	}
	return &cfg, nil
}
