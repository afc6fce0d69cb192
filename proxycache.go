package proxycache

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/always-cache/proxycache/cache"
	cachekey "github.com/always-cache/proxycache/pkg/cache-key"
	originfetcher "github.com/always-cache/proxycache/pkg/origin-fetcher"
	requestline "github.com/always-cache/proxycache/pkg/request-line"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultBacklog is the listen queue size the proxy is configured with.
// The Go runtime picks the actual kernel backlog.
const DefaultBacklog = 5

type Config struct {
	// Storage for cache entries.
	Cache cache.CacheProvider
	// Key derivation. The zero value uses md5.
	Keyer cachekey.CacheKeyer
	// Fetcher for cache misses. A default fetcher (port 80) is used if nil.
	Fetcher *originfetcher.Fetcher
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Size of the single read from the client. Defaults to 1024.
	BufferSize int
	// Deadline for the client read. Zero disables it.
	ReadTimeout time.Duration
	// Handle connections in parallel instead of one at a time.
	Concurrent bool
}

type Proxy struct {
	cache       cache.CacheProvider
	keyer       cachekey.CacheKeyer
	fetcher     *originfetcher.Fetcher
	log         zerolog.Logger
	bufferSize  int
	readTimeout time.Duration
	concurrent  bool
	misses      singleflight.Group
}

// CreateProxy sets up a proxy instance from config.
// It does not start listening; see Serve and ListenAndServe.
func CreateProxy(config Config) *Proxy {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		logger = *config.Logger
	}

	p := &Proxy{
		cache:       config.Cache,
		keyer:       config.Keyer,
		fetcher:     config.Fetcher,
		log:         logger,
		bufferSize:  config.BufferSize,
		readTimeout: config.ReadTimeout,
		concurrent:  config.Concurrent,
	}
	if p.cache == nil {
		p.cache = cache.NewMemCache()
	}
	if p.fetcher == nil {
		p.fetcher = originfetcher.New(originfetcher.Config{Logger: &logger})
	}
	if p.bufferSize <= 0 {
		p.bufferSize = requestline.DefaultBufferSize
	}
	return p
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (p *Proxy) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return p.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is cancelled, and then closes l.
// In sequential mode each connection is answered before the next one is
// accepted. In concurrent mode Serve waits for in-flight connections
// before returning.
func (p *Proxy) Serve(ctx context.Context, l net.Listener) error {
	log := p.log.With().Str("listen", l.Addr().String()).Logger()
	log.Info().Bool("concurrent", p.concurrent).Msg("Proxy listening")

	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Debug().Msg("Proxy stopped")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Warn().Err(err).Msg("Temporary accept error")
				continue
			}
			return err
		}
		if !p.concurrent {
			p.handleConn(ctx, conn)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.handleConn(ctx, conn)
		}()
	}
}
