package portalcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/always-cache/portal-cache/cache"
	cachekey "github.com/always-cache/portal-cache/pkg/cache-key"
	cachestatus "github.com/always-cache/portal-cache/pkg/cache-status"
	serializer "github.com/always-cache/portal-cache/pkg/response-serializer"
	ttlrules "github.com/always-cache/portal-cache/pkg/ttl-rules"

	"github.com/rs/zerolog"
)

const (
	DefaultTTL     = 2 * time.Hour
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 10 << 20
)

type Config struct {
	// Storage for cache entries. Fetches go straight upstream if nil.
	Cache cache.CacheProvider
	// HTTP client for upstream calls. http.DefaultClient is used if nil.
	Client *http.Client
	// Lifetime of cached responses unless a rule or the call says otherwise.
	DefaultTTL time.Duration
	// Upper bound for a live upstream call unless the call says otherwise.
	Timeout time.Duration
	// Per-endpoint lifetimes, checked before DefaultTTL.
	Rules ttlrules.Rules
	// Headers sent with every upstream request. Request headers take precedence.
	Header http.Header
	// Prefix for all cache keys.
	Namespace string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Clock, for tests.
	Now func() time.Time
}

// Fetcher performs upstream calls through the cache.
type Fetcher struct {
	cache   cache.CacheProvider
	client  *http.Client
	keyer   cachekey.CacheKeyer
	rules   ttlrules.Rules
	header  http.Header
	ttl     time.Duration
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a fetcher from the given config, filling in defaults.
func New(config Config) *Fetcher {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("component", "fetcher").
		Logger()

	f := &Fetcher{
		cache:   config.Cache,
		client:  config.Client,
		keyer:   cachekey.NewCacheKeyer(config.Namespace),
		rules:   config.Rules,
		header:  config.Header.Clone(),
		ttl:     config.DefaultTTL,
		timeout: config.Timeout,
		log:     logger,
		now:     config.Now,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.ttl == 0 {
		f.ttl = DefaultTTL
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Fetch returns the response for req, from the cache when there is a fresh entry
// and from the upstream otherwise. If the live call fails and an expired entry
// exists, the expired entry is returned instead of the error.
func (f *Fetcher) Fetch(ctx context.Context, req Request, opts ...Option) (*Response, error) {
	o := fetchOptions{timeout: f.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	req.Method = strings.ToUpper(req.Method)
	key, err := f.keyer.Key(req.Method, req.URL, req.Params, req.Form)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	log := f.log.With().Str("key", key).Logger()

	var stale *cache.CacheEntry
	cs := cachestatus.CacheStatus{}
	switch {
	case f.cache == nil:
		cs.Forward(cachestatus.FwdReasonBypass)
	case o.live:
		cs.Forward(cachestatus.FwdReasonMethod)
	case o.refetch:
		cs.Forward(cachestatus.FwdReasonRequest)
	default:
		entry, found, err := f.cache.Get(ctx, key)
		now := f.now()
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Cache read failed, fetching live")
			cs.Forward(cachestatus.FwdReasonBypass)
		case !found:
			cs.Forward(cachestatus.FwdReasonUriMiss)
		case entry.Expired(now):
			stale = &entry
			cs.Forward(cachestatus.FwdReasonStale)
		default:
			res, err := f.fromEntry(req, entry, now)
			if err == nil {
				res.Status.Hit()
				res.Status.TTL(int(res.TTLRemaining.Seconds()))
				f.logFetch(res)
				return res, nil
			}
			log.Warn().Err(err).Msg("Discarding unreadable cache entry")
			f.purge(ctx, key)
			cs.Forward(cachestatus.FwdReasonUriMiss)
		}
	}

	res, err := f.live(ctx, req, key, o)
	if err != nil {
		if stale != nil {
			now := f.now()
			if staleRes, derr := f.fromEntry(req, *stale, now); derr == nil {
				staleRes.Stale = true
				staleRes.Status.Hit()
				staleRes.Status.TTL(-int(now.Sub(stale.Expires).Seconds()))
				staleRes.Status.Detail = "stale-if-error"
				log.Warn().Err(err).Msg("Upstream failed, serving stale entry")
				f.logFetch(staleRes)
				return staleRes, nil
			}
		}
		log.Debug().Err(err).Str("method", req.Method).Str("url", req.URL).Msg("Upstream fetch failed")
		return nil, err
	}
	res.Status = cs

	ttl := f.ttlFor(req, o)
	if ttl > 0 && f.cache != nil {
		res.ExpiresAt = res.CreatedAt.Add(ttl)
		res.TTLRemaining = ttl
		if err := f.store(ctx, res); err != nil {
			log.Warn().Err(err).Msg("Cache write failed")
		} else {
			res.Stored = true
			res.Status.Stored = true
			res.Status.TTL(int(ttl.Seconds()))
		}
	}
	f.logFetch(res)
	return res, nil
}

// live performs the upstream call, bounded by the fetch timeout.
func (f *Fetcher) live(ctx context.Context, req Request, key string, o fetchOptions) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	httpReq, err := f.newRequest(ctx, req, o.refetch)
	if err != nil {
		return nil, err
	}
	requestTime := f.now()
	httpRes, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer httpRes.Body.Close()
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrUpstreamUnavailable, err)
	}
	responseTime := f.now()
	f.log.Trace().Str("key", key).Int("status", httpRes.StatusCode).Dur("took", responseTime.Sub(requestTime)).Msg("Upstream responded")

	res := &Response{
		Request:    req,
		Key:        key,
		StatusCode: httpRes.StatusCode,
		Header:     httpRes.Header,
		Body:       body,
		CreatedAt:  responseTime,
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		return nil, &StatusError{StatusCode: httpRes.StatusCode, Response: res}
	}
	return res, nil
}

func (f *Fetcher) newRequest(ctx context.Context, req Request, refetch bool) (*http.Request, error) {
	u, err := cachekey.NormalizeURL(req.URL, req.Params)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if len(req.Form) > 0 {
		body = strings.NewReader(req.Form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, err
	}
	copyHeadersTo(httpReq.Header, f.header)
	copyHeadersTo(httpReq.Header, req.Header)
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if refetch {
		httpReq.Header.Set("Cache-Control", "no-cache")
	}
	for _, c := range req.Cookies {
		httpReq.AddCookie(c)
	}
	return httpReq, nil
}

func (f *Fetcher) ttlFor(req Request, o fetchOptions) time.Duration {
	if o.hasTTL {
		return o.ttl
	}
	if len(f.rules) > 0 {
		if raw, err := cachekey.NormalizeURL(req.URL, req.Params); err == nil {
			if u, err := url.Parse(raw); err == nil {
				if ttl, ok := f.rules.TTL(req.Method, u); ok {
					return ttl
				}
			}
		}
	}
	return f.ttl
}

func (f *Fetcher) store(ctx context.Context, res *Response) error {
	bts, err := serializer.StoredResponseToBytes(serializer.StoredResponse{
		StatusCode:   res.StatusCode,
		Header:       res.Header,
		Body:         res.Body,
		RequestTime:  res.CreatedAt,
		ResponseTime: res.CreatedAt,
	})
	if err != nil {
		return err
	}
	f.log.Trace().Str("key", res.Key).Time("expiry", res.ExpiresAt).Msg("Cache write")
	return f.cache.Put(ctx, cache.CacheEntry{
		Key:       res.Key,
		CreatedAt: res.CreatedAt,
		Expires:   res.ExpiresAt,
		Bytes:     bts,
	})
}

func (f *Fetcher) fromEntry(req Request, entry cache.CacheEntry, now time.Time) (*Response, error) {
	stored, err := serializer.BytesToStoredResponse(entry.Bytes)
	if err != nil {
		return nil, err
	}
	return &Response{
		Request:      req,
		Key:          entry.Key,
		StatusCode:   stored.StatusCode,
		Header:       stored.Header,
		Body:         stored.Body,
		FromCache:    true,
		CreatedAt:    entry.CreatedAt,
		ExpiresAt:    entry.Expires,
		Age:          entry.Age(now),
		TTLRemaining: entry.TTL(now),
	}, nil
}

func (f *Fetcher) purge(ctx context.Context, key string) bool {
	removed, err := f.cache.Purge(ctx, key)
	if err != nil {
		f.log.Error().Err(err).Str("key", key).Msg("Could not remove cache entry")
		return false
	}
	return removed
}

// logFetch emits the observability record for a fetch.
func (f *Fetcher) logFetch(res *Response) {
	isHit := 0
	source := "network"
	msg := "Cache MISS"
	if res.Status.IsHit() {
		isHit = 1
		source = "cache"
		msg = "Cache HIT"
	}
	f.log.Debug().
		Str("method", res.Request.Method).
		Str("url", res.Request.URL).
		Str("key", res.Key).
		Str("status", res.Status.String()).
		Str("source", source).
		Dur("age", res.Age).
		Dur("ttl", lifetime(res)).
		Dur("ttlRemaining", res.TTLRemaining).
		Str("remaining", formatRemaining(res.TTLRemaining, res.ExpiresAt)).
		Bool("stored", res.Stored).
		Bool("stale", res.Stale).
		Int("hit", isHit).
		Msg(msg)
}

// lifetime is the total cache lifetime of res, zero if it was not cached.
func lifetime(res *Response) time.Duration {
	if res.ExpiresAt.IsZero() {
		return 0
	}
	return res.ExpiresAt.Sub(res.CreatedAt)
}

func formatRemaining(ttl time.Duration, expires time.Time) string {
	if expires.IsZero() {
		return "N/A"
	}
	if ttl <= 0 {
		return "expired"
	}
	return fmt.Sprintf("%.1f min left", ttl.Minutes())
}

// copyHeadersTo copies the headers from one http.Header to another.
// Existing values of a copied header are replaced.
func copyHeadersTo(dst, src http.Header) {
	for name, values := range src {
		dst.Del(name)
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}
