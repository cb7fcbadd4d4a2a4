package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9999"
database:
  url: postgres://localhost/gatherly
auth:
  secret_key: file-secret
reminders:
  enabled: true
  window: 12h
  link_base_url: https://gatherly.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/gatherly", cfg.Database.URL)
	assert.Equal(t, "file-secret", cfg.Auth.SecretKey)
	assert.Equal(t, 12*time.Hour, cfg.Reminders.Window)

	// Defaults survive partial files
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 5*time.Second, cfg.Notifications.Worker.PollInterval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
database:
  url: postgres://localhost/from-file
auth:
  secret_key: file-secret
reminders:
  enabled: false
`)

	t.Setenv("GATHERLY_DATABASE__URL", "postgres://localhost/from-env")
	t.Setenv("GATHERLY_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/from-env", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileTolerated(t *testing.T) {
	t.Setenv("GATHERLY_DATABASE__URL", "postgres://localhost/gatherly")
	t.Setenv("GATHERLY_AUTH__SECRET_KEY", "env-secret")
	t.Setenv("GATHERLY_REMINDERS__LINK_BASE_URL", "https://gatherly.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.SecretKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.URL = "postgres://localhost/gatherly"
		cfg.Auth.SecretKey = "secret"
		cfg.Reminders.LinkBaseURL = "https://gatherly.example.com"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing database url", func(t *testing.T) {
		cfg := valid()
		cfg.Database.URL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing secret key", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.SecretKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing link base url with scheduler enabled", func(t *testing.T) {
		cfg := valid()
		cfg.Reminders.LinkBaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("link base url optional when scheduler disabled", func(t *testing.T) {
		cfg := valid()
		cfg.Reminders.Enabled = false
		cfg.Reminders.LinkBaseURL = ""
		assert.NoError(t, cfg.Validate())
	})
}
