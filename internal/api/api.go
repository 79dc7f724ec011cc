// Package api exposes the portal calls over HTTP with a uniform JSON envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	portalcache "github.com/always-cache/portal-cache"
	cachecontrol "github.com/always-cache/portal-cache/pkg/cache-control"
	"github.com/always-cache/portal-cache/portal"
	"github.com/always-cache/portal-cache/record"
)

const requestIDHeader = "X-Request-Id"

// Portal is the set of portal calls served by the API.
type Portal interface {
	Login(ctx context.Context, regNo, password string) (portal.LoginResult, error)
	ValidateSession(ctx context.Context) (portal.SessionStatus, error)
	Logout(ctx context.Context) (portal.LogoutResult, error)
	SendResetOTP(ctx context.Context, mobile string) (portal.ResetResult, error)
	ResetPassword(ctx context.Context, mobile, otp, password string) (portal.ResetResult, error)
	CheckPassword(ctx context.Context, password string) (portal.Message, error)
	UpdatePassword(ctx context.Context, password string) (portal.Message, error)
	Profile(ctx context.Context, refetch bool) (record.Profile, error)
	EditableProfile(ctx context.Context, refetch bool) (record.EditableProfile, error)
	UpdateEditableProfile(ctx context.Context, update portal.ProfileUpdate) (portal.ProfileUpdate, error)
	Results(ctx context.Context, refetch bool) ([]record.StudentResult, error)
	ExamResult(ctx context.Context, examCode string, refetch bool) (record.ExamResult, error)
	DetailedExamResult(ctx context.Context, examCode string, refetch bool) (record.DetailedResult, error)
	Notifications(ctx context.Context, refetch bool) ([]record.Notification, error)
	PracticalTimetable(ctx context.Context, refetch bool) (record.PracticalTimetable, error)
}

// CacheAdmin reports on and clears the response cache.
type CacheAdmin interface {
	Stats(ctx context.Context) (portalcache.Stats, error)
	Clear(ctx context.Context) error
}

type Options struct {
	Portal Portal
	Cache  CacheAdmin
	Logger *zerolog.Logger
}

type Server struct {
	Router *chi.Mux
	portal Portal
	cache  CacheAdmin
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		l := zerolog.New(zerolog.NewConsoleWriter())
		opts.Logger = &l
	}
	logger := opts.Logger.With().Str("component", "api").Logger()

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(requestID)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, portal: opts.Portal, cache: opts.Cache}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleHome)
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Get("/validate-session", s.handleValidateSession)
			r.Post("/logout", s.handleLogout)
			r.Post("/password-reset/send-otp", s.handleSendOTP)
			r.Post("/password-reset/confirm", s.handleResetPassword)
			r.Post("/password-check", s.handleCheckPassword)
			r.Post("/password-update", s.handleUpdatePassword)
		})

		r.Get("/profile", s.handleProfile)
		r.Get("/profile/editable", s.handleEditableProfile)
		r.Patch("/profile/edit", s.handleEditProfile)

		r.Get("/results", s.handleResults)
		r.Get("/results/{exam_code}", s.handleExamResult)
		r.Get("/results/{exam_code}/detailed", s.handleDetailedResult)

		r.Get("/notification", s.handleNotifications)
		r.Get("/timetable/practical", s.handlePracticalTimetable)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheClear)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// requestID reuses the caller's request id or assigns a new one, and adds
// it to the request logger.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("req_id", id)
		})
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type envelope struct {
	Success    bool    `json:"success"`
	Error      *string `json:"error"`
	Data       any     `json:"data"`
	StatusCode int     `json:"status_code"`
	RequestID  string  `json:"request_id,omitempty"`
}

func write(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	env.StatusCode = status
	env.RequestID = chimw.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Cannot write response")
	}
}

func writeData(w http.ResponseWriter, r *http.Request, data any) {
	write(w, r, http.StatusOK, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, r *http.Request, status int, message string) {
	write(w, r, status, envelope{Error: &message})
}

// writeError answers with the status of a portal error, or 500 for anything else.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *portal.Error
	if errors.As(err, &perr) {
		writeFailure(w, r, perr.Status, perr.Message)
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("Unexpected error")
	writeFailure(w, r, http.StatusInternalServerError, "An unexpected error occurred")
}

// respond writes data, or the error if there is one.
func respond[T any](w http.ResponseWriter, r *http.Request, data T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, data)
}

// refetch reports whether the caller asked to bypass the cache, with
// ?refetch=true or a Cache-Control: no-cache request header.
func refetch(r *http.Request) bool {
	if v := r.URL.Query().Get("refetch"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			return true
		}
	}
	return cachecontrol.FromHeader(r.Header).NoCache()
}

// decodeBody reads a JSON request body into v. It writes the failure itself
// and returns false when the body is malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeFailure(w, r, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}
