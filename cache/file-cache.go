package cache

import (
	"errors"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileCache keeps the cache as a single JSON object on disk.
// The in-memory copy guarded by the mutex is the source of truth between
// reloads; every write (or every flush interval) rewrites the whole file.
type FileCache struct {
	path          string
	mutex         *sync.Mutex
	entries       Entries
	dirty         bool
	flushInterval time.Duration
	log           zerolog.Logger
	stop          chan struct{}
	done          chan struct{}
	closeOnce     *sync.Once
}

type FileCacheOption func(*FileCache)

// WithFlushInterval defers persistence to a background loop flushing every
// interval. Zero (the default) persists synchronously on every put.
func WithFlushInterval(interval time.Duration) FileCacheOption {
	return func(c *FileCache) {
		c.flushInterval = interval
	}
}

// WithLogger sets the logger used for load and flush failures.
func WithLogger(logger zerolog.Logger) FileCacheOption {
	return func(c *FileCache) {
		c.log = logger
	}
}

// NewFileCache opens the cache file at path, creating it with an empty
// object if it does not exist yet. A malformed file is treated as empty.
func NewFileCache(path string, opts ...FileCacheOption) (*FileCache, error) {
	c := &FileCache{
		path:      path,
		mutex:     &sync.Mutex{},
		entries:   make(Entries),
		log:       zerolog.Nop(),
		closeOnce: &sync.Once{},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("cache", path).Logger()

	if _, err := ReadFile(path); errors.Is(err, fs.ErrNotExist) {
		c.log.Debug().Msg("Initializing cache file")
		if err := SaveFile(path, c.entries); err != nil {
			return nil, err
		}
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}

	if c.flushInterval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.flushLoop()
	}
	return c, nil
}

// Reload replaces the in-memory entries with the file content.
// Pending buffered writes are flushed first so they are not lost.
// Unreadable or malformed files are logged and load as an empty cache.
func (c *FileCache) Reload() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.flushLocked(); err != nil {
		return err
	}
	entries, err := ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn().Err(err).Msg("Could not load cache, starting empty")
		}
		entries = make(Entries)
	}
	c.entries = entries
	return nil
}

func (c *FileCache) Get(key string) ([]byte, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.entries.Get(key)
}

func (c *FileCache) Put(key string, bytes []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries.Put(key, bytes)
	c.dirty = true
	if c.flushInterval > 0 {
		return nil
	}
	return c.flushLocked()
}

func (c *FileCache) Has(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *FileCache) Keys(cb func(string)) {
	c.mutex.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mutex.Unlock()
	sort.Strings(keys)
	for _, key := range keys {
		cb(key)
	}
}

func (c *FileCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Flush writes pending changes to disk.
func (c *FileCache) Flush() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.flushLocked()
}

// Close stops the flush loop, if any, and flushes pending changes.
func (c *FileCache) Close() error {
	c.closeOnce.Do(func() {
		if c.stop != nil {
			close(c.stop)
			<-c.done
		}
	})
	return c.Flush()
}

func (c *FileCache) flushLocked() error {
	if !c.dirty {
		return nil
	}
	if err := SaveFile(c.path, c.entries); err != nil {
		return err
	}
	c.dirty = false
	c.log.Trace().Int("entries", len(c.entries)).Msg("Cache written")
	return nil
}

func (c *FileCache) flushLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				c.log.Error().Err(err).Msg("Could not write cache")
			}
		case <-c.stop:
			return
		}
	}
}
