package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/proxycache"
	"github.com/always-cache/proxycache/admin"
	"github.com/always-cache/proxycache/cache"
	"github.com/always-cache/proxycache/config"
	cachekey "github.com/always-cache/proxycache/pkg/cache-key"
	originfetcher "github.com/always-cache/proxycache/pkg/origin-fetcher"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// CLI flags
	configFilenameFlag string
	hostFlag           string
	portFlag           int
	cachePathFlag      string
	providerFlag       string
	keyHashFlag        string
	concurrentFlag     bool
	adminAddrFlag      string
	originPortFlag     int
	logFilenameFlag    string
	verbosityTraceFlag bool
	quietFlag          bool

	// this is set by goreleaser
	version string
)

var rootCmd = &cobra.Command{
	Use:          "proxycache",
	Short:        "Forwarding HTTP proxy that answers from a persisted response cache",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

var keyCmd = &cobra.Command{
	Use:   "key <url>",
	Short: "Print the cache key for a request target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHash := keyHashFlag
		if configFilenameFlag != "" && !cmd.Flags().Changed("key-hash") {
			cfg, err := config.Load(configFilenameFlag)
			if err != nil {
				return err
			}
			keyHash = cfg.Cache.KeyHash
		}
		keyer, err := cachekey.NewCacheKeyer(cachekey.HashAlgo(keyHash))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), keyer.Key(args[0]))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	if version == "" {
		version = "DEV"
	}

	flags := rootCmd.Flags()
	rootCmd.PersistentFlags().StringVar(&configFilenameFlag, "config", "", "Path to config file (.yaml or .toml)")
	flags.StringVar(&hostFlag, "host", "localhost", "Host to listen on")
	flags.IntVar(&portFlag, "port", 6677, "Port to listen on")
	flags.StringVar(&cachePathFlag, "cache", "./cache.json", "Cache file (or sqlite db) path")
	flags.StringVar(&providerFlag, "provider", config.ProviderFile, "Caching provider to use (file, memory, sqlite)")
	flags.BoolVar(&concurrentFlag, "concurrent", false, "Handle connections concurrently")
	flags.StringVar(&adminAddrFlag, "admin", "", "Address for the read-only admin server")
	flags.IntVar(&originPortFlag, "origin-port", 80, "Port to connect to on origins")
	flags.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
	flags.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flags.BoolVar(&quietFlag, "quiet", false, "Verbosity: info logging only")
	rootCmd.PersistentFlags().StringVar(&keyHashFlag, "key-hash", string(cachekey.HashAlgoMD5), "Cache key digest (md5, blake3)")

	rootCmd.AddCommand(keyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	} else if quietFlag {
		logLevel = zerolog.InfoLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("version", version).Logger()
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configFilenameFlag != "" {
		var err error
		if cfg, err = config.Load(configFilenameFlag); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Listen.Host = hostFlag
	}
	if flags.Changed("port") {
		cfg.Listen.Port = portFlag
	}
	if flags.Changed("cache") {
		cfg.Cache.Path = cachePathFlag
	}
	if flags.Changed("provider") {
		cfg.Cache.Provider = providerFlag
	}
	if flags.Changed("key-hash") {
		cfg.Cache.KeyHash = keyHashFlag
	}
	if flags.Changed("concurrent") {
		cfg.Concurrent = concurrentFlag
	}
	if flags.Changed("admin") {
		cfg.Admin.Addr = adminAddrFlag
	}
	if flags.Changed("origin-port") {
		cfg.Origin.Port = originPortFlag
	}
	return cfg, cfg.Validate()
}

// openCache creates the configured provider.
// The returned closer flushes and releases it.
func openCache(cfg config.Config, logger zerolog.Logger) (cache.CacheProvider, func() error, error) {
	switch cfg.Cache.Provider {
	case config.ProviderFile:
		c, err := cache.NewFileCache(cfg.Cache.Path,
			cache.WithFlushInterval(cfg.Cache.FlushInterval),
			cache.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case config.ProviderSQLite:
		c, err := cache.NewSQLiteCache(cfg.Cache.Path, cache.WithSQLiteLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case config.ProviderMemory:
		return cache.NewMemCache(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache provider: %s", cfg.Cache.Provider)
	}
}

func run(cfg config.Config) error {
	logger := log.Logger

	keyer, err := cachekey.NewCacheKeyer(cachekey.HashAlgo(cfg.Cache.KeyHash))
	if err != nil {
		return err
	}
	c, closeCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			log.Error().Err(err).Msg("Could not close cache")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Admin.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.Admin.Addr,
			Handler: admin.NewRouter(c, keyer, logger.With().Str("component", "admin").Logger()),
		}
		go func() {
			log.Info().Msgf("Admin server listening on %s", cfg.Admin.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Admin server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	proxy := proxycache.CreateProxy(proxycache.Config{
		Cache: c,
		Keyer: keyer,
		Fetcher: originfetcher.New(originfetcher.Config{
			Port:    cfg.Origin.Port,
			Timeout: cfg.Origin.Timeout,
			Logger:  &logger,
		}),
		Logger:      &logger,
		BufferSize:  cfg.Client.BufferSize,
		ReadTimeout: cfg.Client.ReadTimeout,
		Concurrent:  cfg.Concurrent,
	})

	log.Info().
		Str("provider", cfg.Cache.Provider).
		Str("cache", cfg.Cache.Path).
		Int("backlog", cfg.Listen.Backlog).
		Msgf("Proxying on %s", cfg.ListenAddr())
	err = proxy.ListenAndServe(ctx, cfg.ListenAddr())
	log.Info().Msg("Shutting down the server.")
	return err
}
