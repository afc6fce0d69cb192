// Package config holds the proxy settings and loads them from YAML or TOML
// files.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Listen     Listen `yaml:"listen" toml:"listen"`
	Client     Client `yaml:"client" toml:"client"`
	Origin     Origin `yaml:"origin" toml:"origin"`
	Cache      Cache  `yaml:"cache" toml:"cache"`
	Concurrent bool   `yaml:"concurrent" toml:"concurrent"`
	Admin      Admin  `yaml:"admin" toml:"admin"`
}

type Listen struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	// Advisory: the Go runtime sizes the kernel accept queue itself.
	Backlog int `yaml:"backlog" toml:"backlog"`
}

type Client struct {
	BufferSize  int           `yaml:"bufferSize" toml:"bufferSize"`
	ReadTimeout time.Duration `yaml:"readTimeout" toml:"readTimeout"`
}

type Origin struct {
	Port    int           `yaml:"port" toml:"port"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

type Cache struct {
	// One of file, memory, sqlite.
	Provider string `yaml:"provider" toml:"provider"`
	Path     string `yaml:"path" toml:"path"`
	// One of md5, blake3.
	KeyHash string `yaml:"keyHash" toml:"keyHash"`
	// Zero writes the file after every store.
	FlushInterval time.Duration `yaml:"flushInterval" toml:"flushInterval"`
}

type Admin struct {
	// Address of the admin HTTP server. Empty disables it.
	Addr string `yaml:"addr" toml:"addr"`
}

const (
	ProviderFile   = "file"
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
)

func Default() Config {
	return Config{
		Listen: Listen{
			Host:    "localhost",
			Port:    6677,
			Backlog: 5,
		},
		Client: Client{
			BufferSize:  1024,
			ReadTimeout: 30 * time.Second,
		},
		Origin: Origin{
			Port:    80,
			Timeout: 30 * time.Second,
		},
		Cache: Cache{
			Provider: ProviderFile,
			Path:     "./cache.json",
			KeyHash:  "md5",
		},
	}
}

// Load decodes the file at path on top of the defaults.
// Files ending in .toml are read as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	config := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return config, fmt.Errorf("could not read config %s: %w", path, err)
		}
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("could not read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &config); err != nil {
			return config, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if err := validPort("listen.port", c.Listen.Port); err != nil {
		return err
	}
	if err := validPort("origin.port", c.Origin.Port); err != nil {
		return err
	}
	if c.Client.BufferSize <= 0 {
		return fmt.Errorf("%w: client.bufferSize must be positive, got %d", ErrInvalidConfig, c.Client.BufferSize)
	}
	if c.Client.ReadTimeout < 0 || c.Origin.Timeout < 0 || c.Cache.FlushInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	switch c.Cache.Provider {
	case ProviderFile, ProviderSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("%w: cache.path is required for provider %s", ErrInvalidConfig, c.Cache.Provider)
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("%w: unsupported cache provider %q", ErrInvalidConfig, c.Cache.Provider)
	}
	switch c.Cache.KeyHash {
	case "md5", "blake3":
	default:
		return fmt.Errorf("%w: unsupported cache key hash %q", ErrInvalidConfig, c.Cache.KeyHash)
	}
	return nil
}

// ListenAddr is the host:port the proxy binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Listen.Host, strconv.Itoa(c.Listen.Port))
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s must be in 1..65535, got %d", ErrInvalidConfig, name, port)
	}
	return nil
}
