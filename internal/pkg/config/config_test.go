package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"SIPCARD_STORE_PATH": "/tmp/sipcard/tokens.bin",
	}))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	require.Zero(t, cfg.Session.ExpiryGrace)
	require.Equal(t, 30*time.Second, cfg.Session.RefreshTimeout)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.Equal(t, "/tmp/sipcard/tokens.bin", cfg.Store.Path)
}

func TestLoad_Prefixed(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"SIPCARD_API_BASE_URL":         "https://api.example.com",
		"SIPCARD_SESSION_EXPIRY_GRACE": "30s",
		"SIPCARD_STORE_PATH":           "/tmp/x",
		"SIPCARD_STORE_PASSPHRASE":     "pw",
		"API_BASE_URL":                 "https://ignored.example.com",
	}))
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	require.Equal(t, 30*time.Second, cfg.Session.ExpiryGrace)
	require.Equal(t, "pw", cfg.Store.Passphrase)
}

func TestLoad_Invalid(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"relative url":   {"SIPCARD_API_BASE_URL": "api.example.com", "SIPCARD_STORE_PATH": "/tmp/x"},
		"negative grace": {"SIPCARD_SESSION_EXPIRY_GRACE": "-1s", "SIPCARD_STORE_PATH": "/tmp/x"},
		"bad duration":   {"SIPCARD_HTTP_TIMEOUT": "soon", "SIPCARD_STORE_PATH": "/tmp/x"},
	} {
		_, err := load(context.Background(), envconfig.MapLookuper(env))
		require.Error(t, err, name)
	}
}
