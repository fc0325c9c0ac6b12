package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"grimm.is/alertwall/internal/audit"
	"grimm.is/alertwall/internal/clock"
	"grimm.is/alertwall/internal/config"
	"grimm.is/alertwall/internal/events"
	"grimm.is/alertwall/internal/firewall"
	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/metrics"
	"grimm.is/alertwall/internal/ratelimit"
)

// ServerConfig holds HTTP server security configuration.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns secure default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		MaxBodyBytes:      1 << 16, // rule requests are tiny
		ShutdownTimeout:   10 * time.Second,
	}
}

// Server is the control API.
type Server struct {
	cfg        *config.APIConfig
	store      *firewall.Store
	hub        *events.Hub
	audit      *audit.Store
	limiter    *ratelimit.Limiter
	ws         *WSManager
	logger     *logging.Logger
	metrics    *metrics.Registry
	apiKeyHash []byte
	startTime  time.Time
	mux        *http.ServeMux
}

// ServerOptions configures NewServer. Store is required; Hub and Audit may be nil.
type ServerOptions struct {
	Config *config.APIConfig
	Store  *firewall.Store
	Hub    *events.Hub
	Audit  *audit.Store
	Logger *logging.Logger
}

// NewServer wires the routes and middleware.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: rule store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.APIConfig{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub()
	}

	s := &Server{
		cfg:       cfg,
		store:     opts.Store,
		hub:       hub,
		audit:     opts.Audit,
		limiter:   ratelimit.NewLimiter(cfg.RateLimit, time.Minute),
		logger:    logger.WithComponent("api"),
		metrics:   metrics.Get(),
		startTime: clock.Now(),
		mux:       http.NewServeMux(),
	}
	if cfg.APIKeyHash != "" {
		s.apiKeyHash = []byte(cfg.APIKeyHash)
	}
	s.ws = NewWSManager(s.logger)
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.mux.HandleFunc("GET /api/rules", s.handleListRules)
	s.mux.Handle("POST /api/rules", s.mutating(s.handleCreateRule))
	s.mux.Handle("DELETE /api/rules", s.mutating(s.handleDeleteRule))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("GET /api/audit", s.handleAudit)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// mutating guards rule changes: rate limit first, then the API key.
func (s *Server) mutating(h http.HandlerFunc) http.Handler {
	return s.rateLimitMiddleware(s.apiKeyMiddleware(h))
}

// Handler returns the root handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	cfg := DefaultServerConfig()
	var h http.Handler = s.mux
	h = maxBodyMiddleware(cfg.MaxBodyBytes)(h)
	h = s.loggingMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

// ListenAndServe binds addr, caps concurrent connections at maxConns
// (0 = unlimited) and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, maxConns int) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the API on listener until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	cfg := DefaultServerConfig()
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	wsCtx, cancelWS := context.WithCancel(ctx)
	defer cancelWS()
	s.ws.Attach(wsCtx, s.hub)

	if s.limiter.Enabled() {
		s.limiter.StartCleanup(wsCtx, 5*time.Minute, 10*time.Minute)
	}
	if s.audit != nil {
		go s.pruneAudit(wsCtx, 24*time.Hour)
	}

	s.logger.Info("API server listening", "addr", listener.Addr().String(),
		"backend", s.store.Backend(), "chain", s.store.Chain())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	s.ws.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) pruneAudit(ctx context.Context, interval time.Duration) {
	prune := func() {
		n, err := s.audit.Prune()
		if err != nil {
			s.logger.Warn("audit prune failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("audit events pruned", "count", n)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
