package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"mealtrack/internal/cache"
	"mealtrack/internal/ledger"
	applog "mealtrack/internal/log"
	"mealtrack/internal/middleware/ratelimit"
	"mealtrack/internal/middleware/security"
	"mealtrack/internal/middleware/trace"
	"mealtrack/internal/remote"
	"mealtrack/internal/stats"
	"mealtrack/internal/storage"
)

// SessionStore persists the signed-in user and their age.
// *storage.SQLiteRepository satisfies it.
type SessionStore interface {
	LoadSession(ctx context.Context) (storage.Session, bool, error)
	SaveSession(ctx context.Context, userID int64, age int) (storage.Session, error)
}

// Deps are the services the handlers call. Scanner and Sessions may be nil;
// the routes that need them then answer 503.
type Deps struct {
	Ledger   *ledger.Ledger
	Stats    *stats.Service
	Scanner  remote.LabelScanner
	Sessions SessionStore
	Caches   *cache.Manager
	Logger   *applog.Logger
}

type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	MaxUploadBytes     int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

// Server wraps http.Server with the meal API and its middleware.
type Server struct {
	http.Server

	ledger   *ledger.Ledger
	stats    *stats.Service
	scanner  remote.LabelScanner
	sessions SessionStore
	caches   *cache.Manager
	logger   *applog.Logger

	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	maxUpload int64

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// Call Shutdown to stop it and its background routines.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	logger := deps.Logger.WithComponent(applog.ComponentHTTP)
	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}

	s := &Server{
		ledger:    deps.Ledger,
		stats:     deps.Stats,
		scanner:   deps.Scanner,
		sessions:  deps.Sessions,
		caches:    deps.Caches,
		logger:    logger,
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP),
		maxUpload: opts.MaxUploadBytes,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerWindow: opts.RateLimitPerMinute,
			Window:            time.Minute,
		}),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/meals/{date}", s.handleListMeals)
	api.HandleFunc("POST /api/meals/{date}", s.handleCreateMeal)
	api.HandleFunc("PUT /api/meals/{date}/{id}", s.handleUpdateMeal)
	api.HandleFunc("DELETE /api/meals/{date}/{id}", s.handleDeleteMeal)
	api.HandleFunc("GET /api/summary/{date}", s.handleSummary)
	api.HandleFunc("GET /api/week/{date}", s.handleWeek)
	api.HandleFunc("GET /api/calendar/{month}", s.handleCalendar)
	api.HandleFunc("GET /api/compare/{date}", s.handleCompare)
	api.HandleFunc("GET /api/averages/{group}", s.handleAverages)
	api.HandleFunc("POST /api/ocr", s.handleScanLabel)
	api.HandleFunc("GET /api/session", s.handleGetSession)
	api.HandleFunc("PUT /api/session", s.handleSaveSession)
	api.HandleFunc("GET /api/state", s.handleState)
	api.HandleFunc("GET /api/metrics", s.handleMetrics)
	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
	}

	// Outermost first.
	var handler http.Handler = api
	handler = s.limiter.Middleware(detector.ExtractClientIP, onLimit)(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(logger.Slog())(handler)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.caches != nil {
			s.caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the ledger is wired; the remote service is
// not probed.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ledger == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
