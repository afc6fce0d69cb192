// Package admin serves a read-only HTTP view of the proxy cache.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/always-cache/proxycache/cache"
	cachekey "github.com/always-cache/proxycache/pkg/cache-key"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Admin struct {
	cache cache.CacheProvider
	keyer cachekey.CacheKeyer
	log   zerolog.Logger
}

type cacheListing struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

type keyLookup struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// NewRouter returns the admin routes for c.
// Keys are derived with keyer, so /key matches what the proxy stores.
func NewRouter(c cache.CacheProvider, keyer cachekey.CacheKeyer, logger zerolog.Logger) http.Handler {
	a := &Admin{cache: c, keyer: keyer, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", a.healthz)
	r.Get("/cache", a.listCache)
	r.Get("/cache/{key}", a.getEntry)
	r.Get("/key", a.lookupKey)
	return r
}

func (a *Admin) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (a *Admin) listCache(w http.ResponseWriter, r *http.Request) {
	listing := cacheListing{Keys: make([]string, 0)}
	a.cache.Keys(func(key string) {
		listing.Keys = append(listing.Keys, key)
	})
	listing.Entries = len(listing.Keys)
	a.writeJSON(w, listing)
}

func (a *Admin) getEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	b, ok, err := a.cache.Get(key)
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not retrieve from cache")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(b)
}

func (a *Admin) lookupKey(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	a.writeJSON(w, keyLookup{URL: target, Key: a.keyer.Key(target)})
}

func (a *Admin) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error().Err(err).Msg("Could not write admin response")
	}
}
