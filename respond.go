package proxycache

import (
	"context"

	"github.com/always-cache/proxycache/cache"
	originfetcher "github.com/always-cache/proxycache/pkg/origin-fetcher"
	responserewriter "github.com/always-cache/proxycache/pkg/response-rewriter"
	"github.com/always-cache/proxycache/rfc9211"
)

type missResult struct {
	res    []byte
	hit    bool
	stored bool
}

// reload refreshes providers backed by shared persisted state, so that a
// sequential proxy sees the cache as it is on disk at the start of each
// request.
func (p *Proxy) reload(r *request) {
	reloader, ok := p.cache.(cache.Reloader)
	if !ok {
		return
	}
	if err := reloader.Reload(); err != nil {
		r.log.Error().Err(err).Msg("Could not reload cache")
	}
}

// cachedResponse returns the stored response for r, prepared for replay.
// Entries that cannot be replayed count as a miss and get refetched.
func (p *Proxy) cachedResponse(r *request) ([]byte, bool) {
	r.log.Trace().Msg("Getting cached entry")
	b, ok, err := p.cache.Get(r.key)
	if err != nil {
		r.log.Error().Err(err).Msg("Could not retrieve from cache")
		r.cacheStatus.Forward(rfc9211.FwdReasonMiss)
		return nil, false
	}
	if !ok {
		r.cacheStatus.Forward(rfc9211.FwdReasonUriMiss)
		return nil, false
	}
	res, err := responserewriter.RewriteForReplay(b)
	if err != nil {
		r.log.Error().Err(err).Msg("Corrupted cache entry, refetching")
		r.cacheStatus.Forward(rfc9211.FwdReasonMiss)
		r.cacheStatus.Detail = "corrupted"
		return nil, false
	}
	return res, true
}

// fetchAndStore fetches r from its origin and stores the raw result,
// failures included. Concurrent misses for the same key share one fetch.
func (p *Proxy) fetchAndStore(ctx context.Context, r *request) []byte {
	v, _, shared := p.misses.Do(r.key, func() (any, error) {
		// another flight may have stored the entry since we last looked
		if p.concurrent {
			if res, ok := p.cachedResponse(r); ok {
				return missResult{res: res, hit: true}, nil
			}
		}
		// a started fetch runs to completion, bounded only by the origin timeout
		outcome := p.fetcher.Fetch(context.WithoutCancel(ctx), r.Target)
		if outcome.Kind != originfetcher.Success {
			r.cacheStatus.Detail = string(outcome.Kind)
		}
		res := outcome.Response()
		return missResult{res: res, stored: p.store(r, res)}, nil
	})
	result := v.(missResult)

	r.cacheStatus.Collapsed = shared
	if result.hit {
		r.cacheStatus.Hit()
	} else {
		r.cacheStatus.Stored = result.stored
	}
	return result.res
}

// store writes res under the key of r. A failed write is logged,
// and the response is still served.
func (p *Proxy) store(r *request, res []byte) bool {
	r.log.Trace().Int("bytes", len(res)).Msg("Writing to cache")
	if err := p.cache.Put(r.key, res); err != nil {
		r.log.Error().Err(err).Msg("Could not write to cache")
		return false
	}
	return true
}
