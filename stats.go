package portalcache

import (
	"context"
	"time"
)

type Stats struct {
	Backend           string       `json:"backend"`
	Location          string       `json:"cache_path"`
	Count             int          `json:"responses"`
	DefaultTTL        string       `json:"expire_after_default"`
	DefaultTTLSeconds int64        `json:"expire_after_default_seconds"`
	Entries           []EntryStats `json:"entries"`
}

type EntryStats struct {
	Key                 string    `json:"key"`
	Method              string    `json:"method"`
	URL                 string    `json:"url"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Expired             bool      `json:"expired"`
	TTLRemainingSeconds int64     `json:"ttl_remaining_seconds"`
	TTLRemaining        string    `json:"ttl_remaining"`
}

// Stats describes the cache contents. It is meant for debugging only.
func (f *Fetcher) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Backend:           "none",
		DefaultTTL:        f.ttl.String(),
		DefaultTTLSeconds: int64(f.ttl.Seconds()),
		Entries:           make([]EntryStats, 0),
	}
	if f.cache == nil {
		return stats, nil
	}
	stats.Backend = f.cache.Name()
	stats.Location = f.cache.Location()
	entries, err := f.cache.All(ctx, f.keyer.Prefix)
	if err != nil {
		return stats, err
	}
	now := f.now()
	for _, e := range entries {
		es := EntryStats{
			Key:                 e.Key,
			CreatedAt:           e.CreatedAt,
			ExpiresAt:           e.Expires,
			Expired:             e.Expired(now),
			TTLRemainingSeconds: int64(e.TTL(now).Seconds()),
			TTLRemaining:        formatRemaining(e.TTL(now), e.Expires),
		}
		if method, uri, _, err := f.keyer.ParseKey(e.Key); err == nil {
			es.Method = method
			es.URL = uri
		}
		stats.Entries = append(stats.Entries, es)
	}
	stats.Count = len(stats.Entries)
	return stats, nil
}
