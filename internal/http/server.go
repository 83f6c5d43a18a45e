// Package http exposes the ledger as a small JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
)

const (
	maxBodyBytes     = 64 << 10
	topCacheSize     = 64
	topCacheTTL      = 5 * time.Minute
	cacheCleanupTick = 10 * time.Minute
	defaultTopLimit  = 5
	maxTopLimit      = 100
)

// Ledger is the part of the ledger service the API drives.
type Ledger interface {
	State() ([]core.Transaction, core.Snapshot, int64)
	AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, core.Snapshot, error)
	DeleteTransaction(ctx context.Context, id int64) (core.Snapshot, error)
	TopCategories(limit int) []core.CategoryAmount
	Version() int64
}

type topKey struct {
	version int64
	limit   int
}

type Server struct {
	http.Server
	ledger Ledger
	logger *applog.Logger

	topCache     *cache.LRUCache[topKey, []categoryJSON]
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, l Ledger, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		ledger:       l,
		logger:       logger.WithComponent(applog.ComponentHTTP),
		topCache:     cache.NewLRUCache[topKey, []categoryJSON](topCacheSize, topCacheTTL),
		cacheManager: cache.NewManager(logger.Logger),
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:       trace.NewMiddleware(),
	}
	s.cacheManager.Register(s.topCache)
	s.cacheManager.StartCleanup(cacheCleanupTick)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/categories/top", s.handleTopCategories)

	var h http.Handler = mux
	h = s.limiter.Middleware(trace.ClientIP, writeRateLimited)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.Middleware(logger, trace.RequestID)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)

		m := s.tracer.GetMetrics()
		s.logger.InfoContext(ctx, "HTTP server stopped",
			"total_requests", m.TotalRequests,
			"avg_response_us", m.AverageResponseTime,
			"rate_limited", s.limiter.GetMetrics().Rejected)
	})
	return err
}
