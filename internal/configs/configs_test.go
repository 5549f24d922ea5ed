package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	cfg, err := LoadConfigFrom(lookupFrom(nil))

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.True(t, cfg.APIBaseURLDefaulted)
	assert.Equal(t, "ws://localhost:8080/hub", cfg.HubURL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadConfigFrom_Explicit(t *testing.T) {
	cfg, err := LoadConfigFrom(lookupFrom(map[string]string{
		"ENVIRONMENT":     "production",
		"PORT":            "9090",
		"POKER_API_URL":   "https://poker.example.com/api/",
		"JWT_SECRET":      "s3cret",
		"ALLOWED_ORIGINS": "https://a.example.com, ,https://b.example.com",
	}))

	require.NoError(t, err)
	assert.False(t, cfg.APIBaseURLDefaulted)
	assert.Equal(t, "https://poker.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, "wss://poker.example.com/hub", cfg.HubURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoadConfigFrom_HubOverride(t *testing.T) {
	cfg, err := LoadConfigFrom(lookupFrom(map[string]string{
		"POKER_HUB_URL": "ws://hub.internal:5000/poker",
	}))

	require.NoError(t, err)
	assert.Equal(t, "ws://hub.internal:5000/poker", cfg.HubURL)
}

func TestLoadConfigFrom_Errors(t *testing.T) {
	_, err := LoadConfigFrom(lookupFrom(map[string]string{"PORT": "80"}))
	assert.Error(t, err)

	_, err = LoadConfigFrom(lookupFrom(map[string]string{"PORT": "abc"}))
	assert.Error(t, err)

	_, err = LoadConfigFrom(lookupFrom(map[string]string{"ENVIRONMENT": "production"}))
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestDeriveHubURL(t *testing.T) {
	hub, err := DeriveHubURL("http://127.0.0.1:4000")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:4000/hub", hub)

	_, err = DeriveHubURL("ftp://x")
	assert.Error(t, err)
}
