package portalcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/always-cache/portal-cache/cache"
	ttlrules "github.com/always-cache/portal-cache/pkg/ttl-rules"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.DebugLevel)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// upstream is a test origin counting the requests it handles.
type upstream struct {
	*httptest.Server
	handleCount atomic.Int32
	fail        atomic.Bool
	body        atomic.Value
	lastHeader  atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	u.body.Store(`{"data":"first"}`)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.handleCount.Add(1)
		u.lastHeader.Store(r.Header.Clone())
		if u.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		body := u.body.Load().(string)
		if v := r.Form.Get("echo"); v != "" {
			body = fmt.Sprintf(`{"echo":%q}`, v)
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) header() http.Header {
	return u.lastHeader.Load().(http.Header)
}

func newFetcher(c *clock, store cache.CacheProvider) *Fetcher {
	return New(Config{
		Cache:  store,
		Logger: &testLogger,
		Now:    c.Now,
	})
}

func get(u *upstream, path string) Request {
	return Request{Method: http.MethodGet, URL: u.URL + path}
}

func TestSecondFetchServedFromCache(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	res, err := f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.True(t, res.Stored)
	assert.Equal(t, time.Hour, res.TTLRemaining)

	c.Advance(30 * time.Minute)
	res, err = f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, `{"data":"first"}`, string(res.Body))
	assert.Equal(t, 30*time.Minute, res.Age)
	assert.Equal(t, 30*time.Minute, res.TTLRemaining)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.EqualValues(t, 1, u.handleCount.Load())
}

func TestExpiredEntryIsRefetched(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	_, err := f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)

	c.Advance(time.Hour)
	u.body.Store(`{"data":"second"}`)
	res, err := f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, `{"data":"second"}`, string(res.Body))
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestStaleOnError(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	first, err := f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)

	c.Advance(30 * time.Minute)
	second, err := f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	c.Advance(31 * time.Minute)
	u.fail.Store(true)
	third, err := f.Fetch(ctx, get(u, "/results"), WithTTL(time.Hour))
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.True(t, third.Stale)
	assert.Equal(t, first.Body, third.Body)
	assert.Contains(t, third.Status.String(), "stale-if-error")
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestStaleOnTransportError(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	_, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	u.Close()

	c.Advance(DefaultTTL + time.Minute)
	res, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, `{"data":"first"}`, string(res.Body))
}

func TestFailureWithoutEntryPropagates(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	u.fail.Store(true)
	_, err := f.Fetch(ctx, get(u, "/results"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, http.StatusBadGateway, statusErr.Response.StatusCode)

	u.Close()
	_, err = f.Fetch(ctx, get(u, "/results"))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	store := cache.NewMemCache()
	f := newFetcher(c, store)

	u.fail.Store(true)
	_, err := f.Fetch(ctx, get(u, "/results"))
	require.Error(t, err)
	all, err := store.All(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestForceRefetchBypassesReadButWrites(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	_, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)

	u.body.Store(`{"data":"fresh"}`)
	res, err := f.Fetch(ctx, get(u, "/profile"), WithRefetch(true))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.True(t, res.Stored)
	assert.Equal(t, `{"data":"fresh"}`, string(res.Body))
	assert.Equal(t, "no-cache", u.header().Get("Cache-Control"))

	res, err = f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, `{"data":"fresh"}`, string(res.Body))
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestForceRefetchDoesNotFallBack(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	_, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	u.fail.Store(true)
	_, err = f.Fetch(ctx, get(u, "/profile"), WithRefetch(true))
	assert.Error(t, err)
}

func TestZeroTTLDoesNotCache(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	store := cache.NewMemCache()
	f := newFetcher(c, store)

	for _, ttl := range []time.Duration{0, -time.Minute} {
		res, err := f.Fetch(ctx, get(u, "/signin.php"), WithTTL(ttl))
		require.NoError(t, err)
		assert.False(t, res.Stored)
	}
	all, err := store.All(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestLiveNeitherReadsNorWrites(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	store := cache.NewMemCache()
	f := newFetcher(c, store)

	_, err := f.Fetch(ctx, get(u, "/logout"))
	require.NoError(t, err)
	res, err := f.Fetch(ctx, get(u, "/logout"), Live())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.False(t, res.Stored)
	assert.False(t, res.Status.IsHit())
	assert.Equal(t, "Portal-Cache; fwd=method", res.Status.String())
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestTimeout(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)
	f := newFetcher(newClock(), cache.NewMemCache())

	_, err := f.Fetch(ctx, Request{Method: "GET", URL: slow.URL}, WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestFormBodiesDeriveDifferentEntries(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	post := func(v string) *Response {
		res, err := f.Fetch(ctx, Request{Method: "POST", URL: u.URL + "/form", Form: url.Values{"echo": {v}}})
		require.NoError(t, err)
		return res
	}
	a := post("a")
	b := post("b")
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, `{"echo":"a"}`, string(post("a").Body))
	assert.True(t, post("b").FromCache)
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestInvalidateRemovesExactlyOneEntry(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	profile, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	_, err = f.Fetch(ctx, get(u, "/results"))
	require.NoError(t, err)

	assert.True(t, f.Invalidate(ctx, profile))
	assert.False(t, f.Invalidate(ctx, profile))
	assert.False(t, f.Invalidate(ctx, nil))

	res, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	res, err = f.Fetch(ctx, get(u, "/results"))
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestInvalidateCachedResponse(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	_, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	cached, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	require.True(t, cached.FromCache)

	assert.True(t, f.Invalidate(ctx, cached))
	res, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

type brokenStore struct {
	*cache.MemCache
}

func (brokenStore) Get(context.Context, string) (cache.CacheEntry, bool, error) {
	return cache.CacheEntry{}, false, errors.New("disk on fire")
}

func (brokenStore) Put(context.Context, cache.CacheEntry) error {
	return errors.New("disk on fire")
}

func TestStoreUnavailableDegradesToLive(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, brokenStore{MemCache: cache.NewMemCache()})

	for i := 0; i < 2; i++ {
		res, err := f.Fetch(ctx, get(u, "/profile"))
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		assert.False(t, res.Stored)
	}
	assert.EqualValues(t, 2, u.handleCount.Load())
}

func TestCorruptEntryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	store := cache.NewMemCache()
	f := newFetcher(c, store)

	res, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, cache.CacheEntry{
		Key:       res.Key,
		CreatedAt: c.Now(),
		Expires:   c.Now().Add(time.Hour),
		Bytes:     []byte("garbage"),
	}))

	res, err = f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, `{"data":"first"}`, string(res.Body))
}

func TestNoCacheConfigured(t *testing.T) {
	ctx := context.Background()
	u := newUpstream(t)
	f := newFetcher(newClock(), nil)

	res, err := f.Fetch(ctx, get(u, "/profile"))
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.False(t, f.Invalidate(ctx, res))
	assert.NoError(t, f.Clear(ctx))
	stats, err := f.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "none", stats.Backend)
}

func TestRulesAndDefaultTTL(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := New(Config{
		Cache:      cache.NewMemCache(),
		DefaultTTL: 5 * time.Minute,
		Rules:      ttlrules.Rules{{Prefix: "/src/", TTL: time.Hour}},
		Logger:     &testLogger,
		Now:        c.Now,
	})

	ruled, err := f.Fetch(ctx, get(u, "/src/profile.php"))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ruled.TTLRemaining)

	plain, err := f.Fetch(ctx, get(u, "/other.php"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, plain.TTLRemaining)

	override, err := f.Fetch(ctx, get(u, "/src/results.php"), WithTTL(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, override.TTLRemaining)
}

func TestOutboundHeadersAndCookies(t *testing.T) {
	ctx := context.Background()
	u := newUpstream(t)
	f := New(Config{
		Cache: cache.NewMemCache(),
		Header: http.Header{
			"User-Agent": {"portal-test"},
			"Referer":    {"https://portal/MainPage.html"},
		},
		Logger: &testLogger,
	})

	_, err := f.Fetch(ctx, Request{
		Method:  "POST",
		URL:     u.URL + "/src/profile.php",
		Header:  http.Header{"Referer": {"https://portal/other"}},
		Cookies: []*http.Cookie{{Name: "PHPSESSID", Value: "abc"}},
	})
	require.NoError(t, err)
	h := u.header()
	assert.Equal(t, "portal-test", h.Get("User-Agent"))
	assert.Equal(t, "https://portal/other", h.Get("Referer"))
	assert.Equal(t, "PHPSESSID=abc", h.Get("Cookie"))
	assert.Empty(t, h.Get("Cache-Control"))
}

func TestResponseCookie(t *testing.T) {
	res := &Response{Header: http.Header{"Set-Cookie": {"PHPSESSID=xyz; path=/", "lang=en"}}}
	c, ok := res.Cookie("PHPSESSID")
	require.True(t, ok)
	assert.Equal(t, "xyz", c.Value)
	_, ok = res.Cookie("missing")
	assert.False(t, ok)
}

func TestUnsupportedMethod(t *testing.T) {
	f := newFetcher(newClock(), cache.NewMemCache())
	_, err := f.Fetch(context.Background(), Request{Method: "DELETE", URL: "https://host/"})
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	u := newUpstream(t)
	f := newFetcher(c, cache.NewMemCache())

	_, err := f.Fetch(ctx, get(u, "/a"), WithTTL(time.Hour))
	require.NoError(t, err)
	_, err = f.Fetch(ctx, get(u, "/b"), WithTTL(2*time.Hour))
	require.NoError(t, err)
	c.Advance(90 * time.Minute)

	stats, err := f.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, 2, stats.Count)
	assert.EqualValues(t, DefaultTTL.Seconds(), stats.DefaultTTLSeconds)
	require.Len(t, stats.Entries, 2)
	assert.True(t, stats.Entries[0].Expired)
	assert.Equal(t, "expired", stats.Entries[0].TTLRemaining)
	assert.Equal(t, "GET", stats.Entries[1].Method)
	assert.Equal(t, u.URL+"/b", stats.Entries[1].URL)
	assert.EqualValues(t, 30*60, stats.Entries[1].TTLRemainingSeconds)
	assert.Equal(t, "30.0 min left", stats.Entries[1].TTLRemaining)

	require.NoError(t, f.Clear(ctx))
	stats, err = f.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}
