package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mindfulmate/mindful/pkg/billing"
	"github.com/mindfulmate/mindful/pkg/cache"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/middleware"
	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// PaymentService starts and settles credit purchases
type PaymentService interface {
	Initiate(ctx context.Context, userID int64, credits int, amountPaisa int64) (*billing.Checkout, error)
	Settle(ctx context.Context, pidx string) (*billing.Settlement, error)
}

// Options wires the server's collaborators. Store, Payments and Auth are
// required.
type Options struct {
	Store    storage.Store
	Payments PaymentService
	Auth     middleware.TokenVerifier

	// Cache backs GET /api/chat-count. Nil disables caching.
	Cache   cache.BalanceCache
	Limiter middleware.Limiter
	Health  *observability.HealthChecker

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Logger   *observability.Logger

	CookieName     string
	AllowedOrigins []string
	MaxBodyBytes   int64
	// FrontendURL is where payers land after the payment return, e.g.
	// http://localhost:5173/chat
	FrontendURL string
}

// Server represents our API server
type Server struct {
	store    storage.Store
	payments PaymentService
	counter  *cache.Counter
	metrics  *observability.Metrics
	logger   *observability.Logger
	opts     Options

	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		store:    opts.Store,
		payments: opts.Payments,
		counter:  cache.NewCounter(opts.Cache, opts.Store.ChatCount, opts.Metrics),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(opts.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(opts.AllowedOrigins),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	if s.opts.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.opts.Health)
	}
	if s.opts.Gatherer != nil {
		observability.RegisterMetricsEndpoint(s.router, s.opts.Gatherer)
	}

	NewPaymentHandlers(s).RegisterPublicRoutes(s.router)

	authn := middleware.NewAuth(s.opts.Auth, s.opts.CookieName)
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(authn.Handler)
	if s.opts.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(s.opts.Limiter, s.metrics))
	}
	api.Use(httputil.ContentTypeMiddleware)

	s.RegisterRoutes(api, NewChatHandlers(s))
	s.RegisterRoutes(api, NewPaymentHandlers(s))
	s.RegisterRoutes(api, NewChatRequestHandlers(s))
	s.RegisterRoutes(api, NewExpertHandlers(s))
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(router *mux.Router, registrar RouteRegistrar) {
	registrar.RegisterRoutes(router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handler returns the server wrapped for OpenTelemetry tracing
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "mindful-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// HTTPServer builds the listening server with the configured timeouts
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}
