package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setConnectedEnvs(t *testing.T) {
	t.Helper()
	envs := map[string]string{
		"WEBHOOK_VERIFY_TOKEN": "hunter2",
		"ACCOUNT_ID":           "17841400000000000",
		"ACCESS_TOKEN":         "EAAtest",
	}
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Success(t *testing.T) {
	setConnectedEnvs(t)
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.WebhookVerifyToken)
	assert.Equal(t, "17841400000000000", cfg.AccountID)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLoad_AllOptional(t *testing.T) {
	// Everything is optional; the agent can start unconnected
	os.Clearenv()
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, ":8090", cfg.MgmtListenAddr)
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/webhook", cfg.WebhookPath)
	assert.Equal(t, "v21.0", cfg.GraphAPIVersion)
	assert.Equal(t, "20s", cfg.PollInterval.String())
	assert.Equal(t, "10s", cfg.SendTimeout.String())
	assert.Equal(t, 1000, cfg.MaxLogSize)
}

func TestLoad_CustomPort(t *testing.T) {
	setConnectedEnvs(t)
	t.Setenv("HTTP_PORT", "9090")
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
}

func TestConfig_EnabledFlags(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.WebhookEnabled())
	assert.False(t, cfg.PollEnabled())
	assert.False(t, cfg.OAuthEnabled())

	cfg.WebhookVerifyToken = "hunter2"
	assert.True(t, cfg.WebhookEnabled())

	cfg.AccountID = "17841400000000000"
	cfg.AccessToken = "EAAtest"
	assert.True(t, cfg.PollEnabled())

	cfg.PollDisabled = true
	assert.False(t, cfg.PollEnabled())

	cfg.AppID = "123"
	cfg.AppSecret = "shh"
	cfg.RedirectURI = "https://example.com/auth/callback"
	assert.True(t, cfg.OAuthEnabled())
}

func TestLoad_MgmtDefaults(t *testing.T) {
	os.Clearenv()
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.MgmtListenAddr)
	assert.Equal(t, "api-key", cfg.MgmtAuthMode)
	assert.Equal(t, 100, cfg.MgmtRateLimitRPS)
	assert.Equal(t, 200, cfg.MgmtRateLimitBurst)
}
