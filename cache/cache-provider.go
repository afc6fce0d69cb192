package cache

import (
	"sort"
	"sync"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent complete raw HTTP
// responses (status line, headers, blank line, body).
// Entries never expire and are never evicted; a put always overwrites.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cached response for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// An error means the entry exists but could not be read back.
	Get(key string) ([]byte, bool, error)
	// Put stores the given response in the cache under the given key.
	// An error means the entry could not be persisted; providers keeping an
	// in-memory copy still serve it until the next reload.
	Put(key string, bytes []byte) error
	// Has checks if the specified key exists in the cache.
	Has(key string) bool
	// Keys calls the given callback for each key, in ascending order.
	Keys(cb func(string))
	// Len returns the number of stored entries.
	Len() int
}

// Reloader is implemented by providers whose persisted state can change
// underneath them and that can re-read it on demand.
type Reloader interface {
	Reload() error
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string][]byte
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string][]byte),
	}
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	b, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m MemCache) Put(key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = append([]byte(nil), bytes...)
	return nil
}

func (m MemCache) Has(key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[key]
	return ok
}

func (m MemCache) Keys(cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	sort.Strings(keys)
	for _, key := range keys {
		cb(key)
	}
}

func (m MemCache) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}
