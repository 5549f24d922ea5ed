/*
Package configs is responsible for loading and parsing the application's configuration settings.

Both binaries read operating system environment variables: the client needs the REST API base URL
and the hub URL derived from it, the reference server needs its port, CORS origins and JWT secret.
*/
package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DefaultAPIBaseURL is used when POKER_API_URL is not set.
const DefaultAPIBaseURL = "http://localhost:8080/api"

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Settings
	Environment string
	Port        int

	// Client Settings
	APIBaseURL string
	HubURL     string

	// APIBaseURLDefaulted is true when POKER_API_URL was missing and the fallback applied.
	APIBaseURLDefaulted bool

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string
}

// IsDevelopment reports whether the application runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the application configuration from environment variables.
func LoadConfig() (*AppConfig, error) {
	return LoadConfigFrom(os.Getenv)
}

// LoadConfigFrom parses the configuration using lookup to resolve each variable.
// Empty values are treated as unset.
func LoadConfigFrom(lookup func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Settings ---
	cfg.Environment = lookup("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := lookup("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Client Settings ---
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(lookup("POKER_API_URL")), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
		cfg.APIBaseURLDefaulted = true
	}

	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("invalid POKER_API_URL environment variable: %w", err)
	}

	cfg.HubURL = strings.TrimSpace(lookup("POKER_HUB_URL"))
	if cfg.HubURL == "" {
		hub, err := DeriveHubURL(cfg.APIBaseURL)
		if err != nil {
			return nil, err
		}
		cfg.HubURL = hub
	}

	// --- Security Settings ---
	originsStr := lookup("ALLOWED_ORIGINS")
	cfg.AllowedOrigins = []string{}
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	jwtSecret := lookup("JWT_SECRET")
	if cfg.IsDevelopment() {
		if jwtSecret == "" {
			jwtSecret = "your_default_insecure_secret_key_change_me"
		}
	} else if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
	}
	cfg.JWTSecret = jwtSecret

	return cfg, nil
}

// DeriveHubURL turns an API base URL into the hub endpoint: http becomes ws,
// https becomes wss, and a trailing /api segment is replaced by /hub.
func DeriveHubURL(apiBaseURL string) (string, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to derive hub url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("failed to derive hub url: unsupported scheme %q", u.Scheme)
	}

	path := strings.TrimRight(u.Path, "/")
	if strings.HasSuffix(path, "/api") {
		path = strings.TrimSuffix(path, "/api")
	}
	u.Path = path + "/hub"
	u.RawQuery = ""

	return u.String(), nil
}
