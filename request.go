package portalcache

import (
	"net/http"
	"net/url"
	"time"

	cachestatus "github.com/always-cache/portal-cache/pkg/cache-status"
)

// Request describes one upstream call.
// Only Method, URL, Params and Form take part in the cache key.
type Request struct {
	Method string
	URL    string
	// Query parameters, merged with the query of URL.
	Params url.Values
	// Form-encoded request body.
	Form    url.Values
	Header  http.Header
	Cookies []*http.Cookie
}

// Response is the raw outcome of a fetch, either live or from the cache.
type Response struct {
	// The request that produced this response; Invalidate derives the key from it.
	Request    Request
	Key        string
	StatusCode int
	Header     http.Header
	Body       []byte

	FromCache bool
	// Served from an expired entry because the live call failed.
	Stale bool
	// Written to the cache by this fetch.
	Stored bool

	CreatedAt    time.Time
	ExpiresAt    time.Time
	Age          time.Duration
	TTLRemaining time.Duration
	Status       cachestatus.CacheStatus
}

// Cookie returns the named cookie set by the upstream response.
func (r *Response) Cookie(name string) (*http.Cookie, bool) {
	res := http.Response{Header: r.Header}
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

type fetchOptions struct {
	ttl     time.Duration
	hasTTL  bool
	refetch bool
	live    bool
	timeout time.Duration
}

// Option changes how a single fetch is performed.
type Option func(*fetchOptions)

// WithTTL overrides the cache lifetime for this fetch.
// A zero or negative TTL means the response is not stored.
func WithTTL(ttl time.Duration) Option {
	return func(o *fetchOptions) {
		o.ttl = ttl
		o.hasTTL = true
	}
}

// WithRefetch skips the cache lookup. A successful response still overwrites the entry.
func WithRefetch(refetch bool) Option {
	return func(o *fetchOptions) {
		o.refetch = refetch
	}
}

// WithTimeout bounds the live upstream call.
func WithTimeout(timeout time.Duration) Option {
	return func(o *fetchOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// Live neither reads nor writes the cache. Used for calls with side effects.
func Live() Option {
	return func(o *fetchOptions) {
		o.live = true
		o.refetch = true
		o.ttl = 0
		o.hasTTL = true
	}
}
