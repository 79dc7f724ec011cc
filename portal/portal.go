// Package portal implements the student portal calls on top of the cached
// fetch pipeline. Every read goes through fetch, a JSON check and a decoder;
// whenever the payload turns out to be unusable the cache entry is evicted
// before the failure is returned.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	portalcache "github.com/always-cache/portal-cache"
	"github.com/always-cache/portal-cache/record"
	"github.com/always-cache/portal-cache/session"
)

const (
	DefaultBaseURL      = "https://studentportal.universitysolutions.in"
	DefaultUnivCode     = "051"
	DefaultCookie       = "PHPSESSID"
	DefaultLoginTimeout = 50 * time.Second

	profileTimeout = 10 * time.Second
	resultTimeout  = 30 * time.Second
)

const msgMissingSession = "Missing session ID. Please log in again."

// Pipeline is the cached fetch pipeline the client runs its calls through.
type Pipeline interface {
	Fetch(ctx context.Context, req portalcache.Request, opts ...portalcache.Option) (*portalcache.Response, error)
	Invalidate(ctx context.Context, res *portalcache.Response) bool
	InvalidateRequest(ctx context.Context, req portalcache.Request) bool
	Clear(ctx context.Context) error
}

type Config struct {
	Pipeline Pipeline
	Session  session.Provider
	BaseURL  string
	UnivCode string
	// Name of the upstream session cookie.
	Cookie       string
	LoginTimeout time.Duration
	Logger       *zerolog.Logger
}

type Client struct {
	pipeline     Pipeline
	session      session.Provider
	baseURL      string
	univCode     string
	cookie       string
	loginTimeout time.Duration
	log          zerolog.Logger
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UnivCode == "" {
		config.UnivCode = DefaultUnivCode
	}
	if config.Cookie == "" {
		config.Cookie = DefaultCookie
	}
	if config.LoginTimeout <= 0 {
		config.LoginTimeout = DefaultLoginTimeout
	}
	if config.Session == nil {
		config.Session = session.NewMemoryStore("")
	}
	if config.Logger == nil {
		l := zerolog.New(zerolog.NewConsoleWriter())
		config.Logger = &l
	}
	return &Client{
		pipeline:     config.Pipeline,
		session:      config.Session,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		univCode:     config.UnivCode,
		cookie:       config.Cookie,
		loginTimeout: config.LoginTimeout,
		log:          config.Logger.With().Str("component", "portal").Logger(),
	}
}

// Error is a failed portal call, carrying the status the caller should answer with.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// upstreamError maps a pipeline failure onto a portal error.
func (c *Client) upstreamError(call string, err error) *Error {
	var statusErr *portalcache.StatusError
	switch {
	case portalcache.IsTimeout(err):
		c.log.Error().Err(err).Str("call", call).Msg("Request timed out")
		return &Error{Status: http.StatusGatewayTimeout, Message: "Request timed out", Err: err}
	case errors.As(err, &statusErr):
		c.log.Warn().Int("status", statusErr.StatusCode).Str("call", call).Msg("Unexpected HTTP status")
		return &Error{
			Status:  statusErr.StatusCode,
			Message: fmt.Sprintf("Unexpected HTTP status: %d", statusErr.StatusCode),
			Err:     err,
		}
	case errors.Is(err, portalcache.ErrUpstreamUnavailable):
		c.log.Error().Err(err).Str("call", call).Msg("Network error")
		return &Error{Status: http.StatusServiceUnavailable, Message: "Network error occurred", Err: err}
	default:
		c.log.Error().Err(err).Str("call", call).Msg("Unexpected error occurred")
		return &Error{Status: http.StatusInternalServerError, Message: "An unexpected error occurred", Err: err}
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// token returns a snapshot of the session token for one call.
func (c *Client) token(call string) (string, *Error) {
	token, ok := c.session.Token()
	if !ok {
		c.log.Warn().Str("call", call).Msg("No session token available")
		return "", fail(http.StatusUnauthorized, msgMissingSession)
	}
	return token, nil
}

func (c *Client) sessionCookies(token string) []*http.Cookie {
	return []*http.Cookie{{Name: c.cookie, Value: token}}
}

// read describes one cached read of a record.
type read[T any] struct {
	call   string
	req    portalcache.Request
	opts   []portalcache.Option
	decode func([]byte) (T, bool)
	// optional check on the raw payload before decoding
	check         func([]byte) *Error
	invalidJSON   *Error
	invalidRecord *Error
}

// fetchRecord fetches, validates and decodes. The cache entry is evicted on
// every validation failure, including payloads served from a stale entry.
func fetchRecord[T any](ctx context.Context, c *Client, r read[T]) (T, *portalcache.Response, error) {
	var zero T
	res, err := c.pipeline.Fetch(ctx, r.req, r.opts...)
	if err != nil {
		return zero, nil, c.upstreamError(r.call, err)
	}
	if !record.Valid(res.Body) {
		c.pipeline.Invalidate(ctx, res)
		c.log.Warn().Str("call", r.call).Bool("fromCache", res.FromCache).Msg("Invalid JSON received, cache invalidated")
		return zero, res, r.invalidJSON
	}
	if r.check != nil {
		if e := r.check(res.Body); e != nil {
			c.pipeline.Invalidate(ctx, res)
			c.log.Warn().Str("call", r.call).Str("reason", e.Message).Msg("Payload rejected, cache invalidated")
			return zero, res, e
		}
	}
	v, ok := r.decode(res.Body)
	if !ok {
		c.pipeline.Invalidate(ctx, res)
		c.log.Warn().Str("call", r.call).Bool("fromCache", res.FromCache).Msg("Data invalid or incomplete, cache invalidated")
		return zero, res, r.invalidRecord
	}
	c.log.Debug().Str("call", r.call).Bool("fromCache", res.FromCache).Msg("Record decoded")
	return v, res, nil
}

// post performs an uncached call and decodes its status envelope.
func (c *Client) post(ctx context.Context, call string, req portalcache.Request, timeout time.Duration) (record.Ack, *portalcache.Response, error) {
	req.Method = http.MethodPost
	res, err := c.pipeline.Fetch(ctx, req, portalcache.Live(), portalcache.WithTimeout(timeout))
	if err != nil {
		return record.Ack{}, nil, c.upstreamError(call, err)
	}
	ack, ok := record.DecodeAck(res.Body)
	if !ok {
		c.log.Error().Str("call", call).Msg("Invalid JSON response from server")
		return record.Ack{}, res, fail(http.StatusBadGateway, "Invalid JSON response from server")
	}
	return ack, res, nil
}
