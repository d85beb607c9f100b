package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "sqlite", c.CacheDriver)
	assert.NotEmpty(t, c.CachePath)
	assert.Equal(t, 15*time.Second, c.RequestTimeout)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Zero(t, c.RetryDelay)
	assert.Equal(t, "text", c.LogFormat)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"praylist", "list"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"server_url":      "http://json:1",
		"request_timeout": "30s",
	})
	os.Args = []string{"praylist", "-c", path, "-a", "http://flag:2", "sync"}

	cfg := LoadConfig()
	assert.Equal(t, "http://flag:2", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}
