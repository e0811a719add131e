package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
)

// ReadinessCheck probes one dependency for /readyz.
type ReadinessCheck func(ctx context.Context) error

// Options configures the API server. Zero values pick the defaults.
type Options struct {
	DefaultUser     string
	RateLimit       ratelimit.Config
	TrustedProxies  []string
	BlockSuspicious bool
	ReadinessChecks map[string]ReadinessCheck
	Logger          *applog.Logger
}

// Server serves the budget API. Recurring endpoints answer 503 when no
// recurring processor is configured.
type Server struct {
	http.Server
	budget    *services.BudgetService
	recurring *services.RecurringProcessor

	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *applog.Logger
	checks   map[string]ReadinessCheck
	block    bool

	defaultUser  string
	started      time.Time
	shutdownOnce sync.Once
}

func NewServer(addr string, budgetSvc *services.BudgetService, recurring *services.RecurringProcessor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	defaultUser := opts.DefaultUser
	if defaultUser == "" {
		defaultUser = "default"
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}

	s := &Server{
		budget:      budgetSvc,
		recurring:   recurring,
		limiter:     ratelimit.NewLimiter(opts.RateLimit),
		detector:    detector,
		logger:      logger,
		checks:      opts.ReadinessChecks,
		block:       opts.BlockSuspicious,
		defaultUser: defaultUser,
		started:     time.Now(),
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)

	mux.HandleFunc("GET /api/period", s.handleGetPeriod)
	mux.HandleFunc("PUT /api/period", s.handleSetPeriod)
	mux.HandleFunc("GET /api/budget", s.handlePeriodBudget)

	mux.HandleFunc("GET /api/preferences", s.handleSummary)
	mux.HandleFunc("POST /api/preferences", s.handleCreatePreference)
	mux.HandleFunc("PUT /api/preferences/{id}", s.handleUpdatePreference)
	mux.HandleFunc("DELETE /api/preferences/{id}", s.handleDeletePreference)
	mux.HandleFunc("GET /api/preferences/remaining", s.handleRemaining)
	mux.HandleFunc("GET /api/preferences/convert", s.handleConvert)

	mux.HandleFunc("GET /api/tracking", s.handleTracking)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /api/recurring", s.handleListRecurring)
	mux.HandleFunc("POST /api/recurring", s.handleCreateRecurring)
	mux.HandleFunc("DELETE /api/recurring/{id}", s.handleDeleteRecurring)

	rateLimited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).
			WarnContext(r.Context(), "Rate limit exceeded", applog.FieldClientIP, s.detector.ExtractClientIP(r))
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)

	// the tracer wraps everything so inner layers log through the request logger
	var h http.Handler = mux
	h = rateLimited(h)
	h = headers.Middleware(h)
	h = s.detector.Middleware(s.block)(h)
	h = tracer.Middleware(h)
	return h
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
	})
	return s.Server.Shutdown(ctx)
}
