// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Webhook ingestion
	WebhookPath        string `envconfig:"WEBHOOK_PATH" default:"/webhook"`
	WebhookVerifyToken string `envconfig:"WEBHOOK_VERIFY_TOKEN"`

	// Graph API (the connected account's credentials)
	GraphBaseURL    string        `envconfig:"GRAPH_BASE_URL" default:"https://graph.facebook.com"`
	GraphAPIVersion string        `envconfig:"GRAPH_API_VERSION" default:"v21.0"`
	GraphTimeout    time.Duration `envconfig:"GRAPH_TIMEOUT" default:"10s"`
	GraphRateLimit  float64       `envconfig:"GRAPH_RATE_LIMIT" default:"5"`
	AccountID       string        `envconfig:"ACCOUNT_ID"`
	AccessToken     string        `envconfig:"ACCESS_TOKEN"`

	// OAuth connect flow (optional; the agent can run webhook-only with a
	// pre-provisioned ACCESS_TOKEN)
	AppID       string `envconfig:"APP_ID"`
	AppSecret   string `envconfig:"APP_SECRET"`
	RedirectURI string `envconfig:"REDIRECT_URI"`

	// Poll ingestion (fallback when push delivery is unavailable)
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"20s"`
	PollDisabled bool          `envconfig:"POLL_DISABLED" default:"false"`

	// Dispatch
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`

	// Rules & logs
	RulesFile  string `envconfig:"RULES_FILE"`
	MaxLogSize int    `envconfig:"MAX_LOG_SIZE" default:"1000"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string `envconfig:"MGMT_JWT_SECRET"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"100"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"200"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`
	MgmtTLSCert        string `envconfig:"MGMT_TLS_CERT"`
	MgmtTLSKey         string `envconfig:"MGMT_TLS_KEY"`
}

// WebhookEnabled returns true if the webhook handshake secret is configured.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookVerifyToken != ""
}

// PollEnabled returns true if the poll loop should run. Polling needs account
// credentials to list media and comments.
func (c *Config) PollEnabled() bool {
	return !c.PollDisabled && c.AccountID != "" && c.AccessToken != ""
}

// OAuthEnabled returns true if the connect flow is configured.
func (c *Config) OAuthEnabled() bool {
	return c.AppID != "" && c.AppSecret != "" && c.RedirectURI != ""
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
