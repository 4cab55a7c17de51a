// Package server exposes the scan service over HTTP for the browser
// extension and other local clients.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/scan"
)

// Scanner runs text and image scans.
type Scanner interface {
	ScanText(ctx context.Context, text string) (*scan.Result, error)
	ScanImage(ctx context.Context, encoded string) (*scan.Result, error)
}

// History is the read and override surface of the scan history.
type History interface {
	List(ctx context.Context, f history.Filter) ([]history.Record, error)
	Get(ctx context.Context, id string) (*history.Record, error)
	Verify(ctx context.Context, id string) (bool, error)
	MarkOverridden(ctx context.Context, id string) (*history.Record, error)
	Analytics(ctx context.Context, days int) (*history.Analytics, error)
	Export(ctx context.Context) (*history.Export, error)
}

// Checker reports the health of one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	scanner     Scanner
	history     History
	apiKeys     map[string]string
	corsOrigins []string
	limiter     *RateLimiter
	maxImageMB  int
	trustProxy  bool
	checkers    []Checker
	settings    map[string]interface{}
	version     string
	startTime   time.Time
}

// Option configures the server.
type Option func(*Server)

// WithAPIKeys sets the accepted keys (key -> caller label).
func WithAPIKeys(keys map[string]string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimiter enables request rate limiting on the API routes.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithMaxImageMB bounds image request bodies.
func WithMaxImageMB(mb int) Option {
	return func(s *Server) { s.maxImageMB = mb }
}

// WithTrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
// Enable it only behind a reverse proxy that sets those headers.
func WithTrustProxy(trust bool) Option {
	return func(s *Server) { s.trustProxy = trust }
}

// WithCheckers adds dependencies reported by /health?detail=true.
func WithCheckers(c ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, c...) }
}

// WithSettings sets the masked configuration included in /v1/export.
func WithSettings(settings map[string]interface{}) Option {
	return func(s *Server) { s.settings = settings }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server over the scan service and its history.
func NewServer(scanner Scanner, hist History, opts ...Option) *Server {
	s := &Server{
		scanner:    scanner,
		history:    hist,
		maxImageMB: content.DefaultMaxImageMB,
		version:    "dev",
		startTime:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(spotel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/analyze/text", s.handleAnalyzeText)
		r.Post("/analyze/image", s.handleAnalyzeImage)

		r.Get("/history", s.handleHistoryList)
		r.Get("/history/{id}", s.handleHistoryGet)
		r.Get("/history/{id}/verify", s.handleHistoryVerify)
		r.Post("/history/{id}/override", s.handleHistoryOverride)

		r.Get("/analytics", s.handleAnalytics)
		r.Get("/export", s.handleExport)
	})

	return r
}
