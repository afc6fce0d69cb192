package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"
)

// SQLiteCache stores entries in a sqlite table.
// Has, Keys and Len have no error return: database errors are logged and
// reported as a missing key, no keys and zero entries respectively.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	log        zerolog.Logger
}

type SQLiteCacheOption func(*SQLiteCache)

// WithSQLiteLogger sets the logger used for database errors.
func WithSQLiteLogger(logger zerolog.Logger) SQLiteCacheOption {
	return func(s *SQLiteCache) {
		s.log = logger
	}
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string, opts ...SQLiteCacheOption) (SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, fmt.Errorf("could not open cache db: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			bytes BLOB
		)`,
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, fmt.Errorf("could not initialize cache db: %w", err)
		}
	}
	s := SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(&s)
	}
	return s, nil
}

func (s SQLiteCache) Get(key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM cache WHERE key = ?", key).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if bytes == nil {
		bytes = []byte{}
	}
	_, err := s.db.Exec("INSERT OR REPLACE INTO cache (key, bytes) VALUES (?, ?)", key, bytes)
	return err
}

func (s SQLiteCache) Has(key string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM cache WHERE key = ?", key).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.log.Error().Err(err).Str("key", key).Msg("Could not look up cache key")
	}
	return err == nil
}

func (s SQLiteCache) Keys(cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM cache ORDER BY key")
	if err != nil {
		s.log.Error().Err(err).Msg("Could not list cache keys")
		return
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			s.log.Error().Err(err).Msg("Could not list cache keys")
			return
		}
		keys = append(keys, key)
	}
	// call back after the rows are drained so cb may use the db
	rows.Close()
	for _, key := range keys {
		cb(key)
	}
}

func (s SQLiteCache) Len() int {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cache").Scan(&n); err != nil {
		s.log.Error().Err(err).Msg("Could not count cache entries")
		return 0
	}
	return n
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}
