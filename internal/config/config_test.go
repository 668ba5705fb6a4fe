package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 6, cfg.MaxConcurrency)
	assert.Equal(t, 1200*time.Millisecond, cfg.MinHostInterval)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "providers.yaml", cfg.ProvidersFile)
	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, 64, cfg.Server.MaxUsernameLen)
	assert.Equal(t, "social_hunt.log", cfg.Log.File)
	assert.False(t, cfg.DemoMode)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
max_concurrency: 3
min_host_interval: 500ms
enabled_addons: [bio_links]
tor:
  enabled: true
server:
  admin_token: from-file
log:
  format: json
`), 0o600))

	t.Setenv("SOCIAL_HUNT_SERVER_ADMIN_TOKEN", "from-env")
	t.Setenv("SOCIAL_HUNT_DEMO_MODE", "true")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.MinHostInterval)
	assert.Equal(t, []string{"bio_links"}, cfg.EnabledAddons)
	assert.True(t, cfg.Tor.Enabled)
	assert.Equal(t, "socks5://127.0.0.1:9050", cfg.Tor.ProxyURL)
	assert.Equal(t, "from-env", cfg.Server.AdminToken)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("max_concurrency: 0\nmin_host_interval: -1s\n"), 0o600))

	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency")
	assert.Contains(t, err.Error(), "min_host_interval")
}

func TestValidate_Log(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "log.format")
}
