package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/pmajay.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Workflow.ExecutingAgencyLimit)
	assert.Equal(t, 5*time.Second, cfg.Workflow.NotifyTimeout)
	assert.Equal(t, "workflow.events", cfg.Events.Topic)
	assert.False(t, cfg.Lark.Enabled)
	assert.Equal(t, 3, cfg.Relay.MaxAttempts)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  path: /tmp/pmajay-test.db
workflow:
  notify_timeout: 2s
  executing_agency_limit: 3
relay:
  poll_interval: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/pmajay-test.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Workflow.NotifyTimeout)
	assert.Equal(t, 3, cfg.Workflow.ExecutingAgencyLimit)
	assert.Equal(t, time.Minute, cfg.Relay.PollInterval)
	// untouched keys keep their defaults
	assert.Equal(t, 3*time.Second, cfg.Workflow.DirectoryTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("PMAJAY_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoad_LarkCredentials(t *testing.T) {
	t.Run("enabled without credentials is rejected", func(t *testing.T) {
		path := writeConfig(t, "lark:\n  enabled: true\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AppID")
	})

	t.Run("credentials come from the environment", func(t *testing.T) {
		path := writeConfig(t, "lark:\n  enabled: true\n")
		t.Setenv("LARK_APP_ID", "cli_test")
		t.Setenv("LARK_APP_SECRET", "secret")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "cli_test", cfg.Lark.AppID)
		assert.Equal(t, "secret", cfg.Lark.AppSecret)
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero executing limit", "workflow:\n  executing_agency_limit: 0\n"},
		{"bad log level", "logger:\n  level: verbose\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"empty database path", "database:\n  path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cc := cfg.ToContainerConfig("1.2.3")
	require.NoError(t, cc.Validate())
	assert.Equal(t, "1.2.3", cc.Server.Version)
	assert.Equal(t, cfg.Workflow.ExecutingAgencyLimit, cc.Workflow.ExecutingAgencyLimit)
	assert.Equal(t, cfg.Events.Buffer, cc.Events.Buffer)
	assert.Equal(t, cfg.Relay.BatchSize, cc.Relay.BatchSize)
}
