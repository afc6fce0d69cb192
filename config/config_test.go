package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, "localhost:6677", c.ListenAddr())
	assert.Equal(t, 1024, c.Client.BufferSize)
	assert.Equal(t, 80, c.Origin.Port)
	assert.Equal(t, ProviderFile, c.Cache.Provider)
	assert.Equal(t, "./cache.json", c.Cache.Path)
	assert.False(t, c.Concurrent)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "proxycache.yaml", `
listen:
  host: 0.0.0.0
  port: 8080
origin:
  timeout: 5s
cache:
  provider: sqlite
  path: cache.db
  keyHash: blake3
concurrent: true
admin:
  addr: 127.0.0.1:9090
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", c.ListenAddr())
	assert.Equal(t, 5*time.Second, c.Origin.Timeout)
	// untouched values keep their defaults
	assert.Equal(t, 80, c.Origin.Port)
	assert.Equal(t, 1024, c.Client.BufferSize)
	assert.Equal(t, ProviderSQLite, c.Cache.Provider)
	assert.Equal(t, "blake3", c.Cache.KeyHash)
	assert.True(t, c.Concurrent)
	assert.Equal(t, "127.0.0.1:9090", c.Admin.Addr)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "proxycache.toml", `
concurrent = true

[listen]
port = 7000

[client]
bufferSize = 2048
readTimeout = "2s"

[cache]
provider = "memory"
flushInterval = "1m"
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:7000", c.ListenAddr())
	assert.Equal(t, 2048, c.Client.BufferSize)
	assert.Equal(t, 2*time.Second, c.Client.ReadTimeout)
	assert.Equal(t, ProviderMemory, c.Cache.Provider)
	assert.Equal(t, time.Minute, c.Cache.FlushInterval)
	assert.True(t, c.Concurrent)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "broken.yaml", "listen: ["))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "broken.toml", "listen = "))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "listen:\n  port: 70000\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"listen port zero", func(c *Config) { c.Listen.Port = 0 }},
		{"listen port too large", func(c *Config) { c.Listen.Port = 65536 }},
		{"origin port negative", func(c *Config) { c.Origin.Port = -1 }},
		{"buffer size zero", func(c *Config) { c.Client.BufferSize = 0 }},
		{"negative timeout", func(c *Config) { c.Origin.Timeout = -time.Second }},
		{"unknown provider", func(c *Config) { c.Cache.Provider = "redis" }},
		{"file without path", func(c *Config) { c.Cache.Path = "" }},
		{"unknown hash", func(c *Config) { c.Cache.KeyHash = "sha1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	c := Default()
	c.Cache.Provider = ProviderMemory
	c.Cache.Path = ""
	assert.NoError(t, c.Validate())
}
