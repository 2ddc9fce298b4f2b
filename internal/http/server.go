package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
)

// LedgerAPI is what the handlers need from the ledger service. The owner
// of every call travels in the context.
type LedgerAPI interface {
	Location() *time.Location

	ListCategories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, name, color string) (core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	CreateExpense(ctx context.Context, draft core.ExpenseDraft) (int64, error)
	UpdateExpense(ctx context.Context, id int64, draft core.ExpenseDraft) error
	DeleteExpense(ctx context.Context, id int64) error

	DailySummary(ctx context.Context, rawDays string) ([]core.DayTotal, error)
	CategorySummary(ctx context.Context, rawDays string) ([]core.CategoryTotal, error)
	MonthlySummary(ctx context.Context, rawMonth string) (core.MonthlySummary, error)

	Ping(ctx context.Context) error
}

// Config configures the HTTP surface.
type Config struct {
	Addr string
	// CORSOrigin is the allowed browser origin; empty disables CORS.
	CORSOrigin string
	// RateLimitPerMinute is per client IP; 0 disables limiting.
	RateLimitPerMinute int
	// MultiUser reads the owner from the X-Ledger-Owner header.
	MultiUser bool
	// TrustedProxies are extra CIDRs allowed to set forwarding headers.
	TrustedProxies []string
	Logger         *log.Logger
}

// Server is the ledger JSON API server.
type Server struct {
	http.Server
	api      LedgerAPI
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
// Every route is served both at the root and under /api.
func NewServer(cfg Config, api LedgerAPI) *Server {
	logger := cfg.Logger
	if logger == nil {
		def := log.DefaultConfig()
		def.Component = log.ComponentHTTP
		logger = log.New(def)
	}

	s := &Server{
		api:      api,
		detector: security.NewDetector(),
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(strings.TrimSpace(cidr)); err != nil {
			logger.Warn("Ignoring trusted proxy",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	owned := ownerMiddleware(cfg.MultiUser)
	route := func(method, path string, h http.HandlerFunc, scoped bool) {
		var handler http.Handler = h
		if scoped {
			handler = owned(handler)
		}
		for _, prefix := range []string{"", "/api"} {
			mux.Handle(method+" "+prefix+path, handler)
		}
	}

	route(http.MethodGet, "/health", s.handleHealth, false)
	route(http.MethodGet, "/readyz", s.handleReady, false)

	route(http.MethodGet, "/categories", s.handleListCategories, true)
	route(http.MethodPost, "/categories", s.handleCreateCategory, true)
	route(http.MethodDelete, "/categories/{id}", s.handleDeleteCategory, true)

	route(http.MethodGet, "/expenses", s.handleListExpenses, true)
	route(http.MethodPost, "/expenses", s.handleCreateExpense, true)
	route(http.MethodGet, "/expenses/{id}", s.handleGetExpense, true)
	route(http.MethodPut, "/expenses/{id}", s.handleUpdateExpense, true)
	route(http.MethodDelete, "/expenses/{id}", s.handleDeleteExpense, true)

	route(http.MethodGet, "/summary/daily", s.handleDailySummary, true)
	route(http.MethodGet, "/summary/categories", s.handleCategorySummary, true)
	route(http.MethodGet, "/summary/monthly", s.handleMonthlySummary, true)

	mux.HandleFunc("/", s.handleNotFound)

	var handler http.Handler = mux
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
		handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)(handler)
	}
	handler = security.CORS(cfg.CORSOrigin)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = recoverMiddleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, msgRateLimited).Write(w)
}

// Shutdown stops background helpers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		activeClients := 0
		if s.limiter != nil {
			activeClients = s.limiter.ActiveClients()
			s.limiter.Stop()
		}
		slog.InfoContext(ctx, "HTTP server shutting down",
			log.FieldComponent, log.ComponentHTTP,
			"requests_served", s.tracer.TotalRequests(),
			"active_clients", activeClients,
			"suspicious_requests", s.detector.SuspiciousCount())
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
