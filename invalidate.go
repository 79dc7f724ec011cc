package portalcache

import (
	"context"
	"strings"
)

// Invalidate removes the cache entry belonging to the request that produced res.
// It reports whether an entry was removed; a missing entry is not an error.
func (f *Fetcher) Invalidate(ctx context.Context, res *Response) bool {
	if res == nil {
		return false
	}
	return f.InvalidateRequest(ctx, res.Request)
}

// InvalidateRequest removes the cache entry for req, if any.
// No other entry is touched.
func (f *Fetcher) InvalidateRequest(ctx context.Context, req Request) bool {
	key, err := f.keyer.Key(strings.ToUpper(req.Method), req.URL, req.Params, req.Form)
	if err != nil {
		f.log.Warn().Err(err).Str("url", req.URL).Msg("Cannot derive key to invalidate")
		return false
	}
	if f.cache == nil {
		return false
	}
	if f.purge(ctx, key) {
		f.log.Warn().Str("key", key).Str("url", req.URL).Msg("Invalid cache entry removed")
		return true
	}
	f.log.Debug().Str("key", key).Str("url", req.URL).Msg("No cache entry found to invalidate")
	return false
}

// Clear removes all cache entries.
func (f *Fetcher) Clear(ctx context.Context) error {
	if f.cache == nil {
		return nil
	}
	if err := f.cache.Clear(ctx); err != nil {
		return err
	}
	f.log.Info().Str("backend", f.cache.Name()).Msg("Cache cleared")
	return nil
}
