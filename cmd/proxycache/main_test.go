package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/always-cache/proxycache/config"
	cachekey "github.com/always-cache/proxycache/pkg/cache-key"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCommand(t *testing.T) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"key", "http://example.com/"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "a6bf1757fff057f266b697df9cf176fd\n", out.String())
}

func TestKeyCommandUsesConfigKeyHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxycache.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache]\nkeyHash = \"blake3\"\n"), 0644))
	keyer, err := cachekey.NewCacheKeyer(cachekey.HashAlgoBLAKE3)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"key", "--config", path, "http://example.com/"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configFilenameFlag = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, keyer.Key("http://example.com/")+"\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "DEV\n", out.String())
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxycache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  port: 7000\ncache:\n  provider: memory\n"), 0644))

	require.NoError(t, rootCmd.ParseFlags([]string{"--config", path, "--port", "7100", "--concurrent"}))
	t.Cleanup(func() {
		configFilenameFlag = ""
		rootCmd.Flags().Set("port", "6677")
		rootCmd.Flags().Set("concurrent", "false")
	})

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Listen.Port)
	assert.True(t, cfg.Concurrent)
	assert.Equal(t, config.ProviderMemory, cfg.Cache.Provider)
	assert.Equal(t, 80, cfg.Origin.Port)
}

func TestOpenCache(t *testing.T) {
	dir := t.TempDir()
	for _, provider := range []string{config.ProviderFile, config.ProviderMemory, config.ProviderSQLite} {
		t.Run(provider, func(t *testing.T) {
			cfg := config.Default()
			cfg.Cache.Provider = provider
			cfg.Cache.Path = filepath.Join(dir, provider+".cache")

			c, closeCache, err := openCache(cfg, zerolog.Nop())
			require.NoError(t, err)
			require.NoError(t, c.Put("k", []byte("v")))
			assert.True(t, c.Has("k"))
			assert.NoError(t, closeCache())
		})
	}

	cfg := config.Default()
	cfg.Cache.Provider = "redis"
	_, _, err := openCache(cfg, zerolog.Nop())
	assert.Error(t, err)
}
