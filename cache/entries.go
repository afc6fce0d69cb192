package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/always-cache/proxycache/pkg/latin1"
)

// Entries is the persisted form of the cache: hex key to response text.
// Response bytes are stored as ISO-8859-1 text so that the JSON file
// can hold arbitrary binary bodies.
type Entries map[string]string

// Get returns the response bytes stored under key.
func (e Entries) Get(key string) ([]byte, bool, error) {
	text, ok := e[key]
	if !ok {
		return nil, false, nil
	}
	b, err := latin1.Encode(text)
	if err != nil {
		return nil, true, fmt.Errorf("corrupted cache entry %s: %w", key, err)
	}
	return b, true, nil
}

// Put stores b under key, replacing any previous entry.
func (e Entries) Put(key string, b []byte) {
	e[key] = latin1.Decode(b)
}

// ReadFile reads the cache file at path.
func ReadFile(path string) (Entries, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries Entries
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("could not parse cache file %s: %w", path, err)
	}
	if entries == nil {
		entries = make(Entries)
	}
	return entries, nil
}

// LoadFile reads the cache file at path.
// A missing or malformed file yields an empty cache.
func LoadFile(path string) Entries {
	entries, err := ReadFile(path)
	if err != nil {
		return make(Entries)
	}
	return entries
}

// SaveFile replaces the cache file at path with entries.
// The file is written to a temporary sibling and renamed into place,
// so readers see either the old or the new content, never a partial write.
func SaveFile(path string, entries Entries) error {
	if entries == nil {
		entries = make(Entries)
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("could not serialize cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary cache file: %w", err)
	}
	tmpName := tmp.Name()
	// no-op once the rename succeeded
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("could not sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close cache file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("could not set cache file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not replace cache file: %w", err)
	}
	return nil
}
