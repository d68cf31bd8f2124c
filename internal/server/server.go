// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ectoplasm/dexclient/internal/config"
	deploysDomain "github.com/ectoplasm/dexclient/internal/deploys/domain"
	deploysTransport "github.com/ectoplasm/dexclient/internal/deploys/transport"
	"github.com/ectoplasm/dexclient/internal/dex"
	dexTransport "github.com/ectoplasm/dexclient/internal/dex/transport"
	"github.com/ectoplasm/dexclient/internal/middleware/logging"
	"github.com/ectoplasm/dexclient/internal/middleware/ratelimit"
	"github.com/ectoplasm/dexclient/internal/middleware/realip"
	"github.com/ectoplasm/dexclient/internal/middleware/security"
	"github.com/ectoplasm/dexclient/internal/observability/metrics"
	"github.com/ectoplasm/dexclient/internal/validation"
)

// readyTimeout bounds the node round trip made by /readyz.
const readyTimeout = 5 * time.Second

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *chi.Mux

	dexSvc     dexTransport.Service
	historySvc deploysTransport.Service
}

// New creates a new server. The DEX facade is expected to be fully wired
// (gateway, recorder, logging); history reads go straight to store.
func New(cfg *config.Config, store deploysDomain.Store, dexSvc dex.Facade, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		router:     chi.NewRouter(),
		dexSvc:     dexSvc,
		historySvc: deploysDomain.NewService(store),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))

	// 3. Body size limit
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	// 4. Rate limiting, with a second bucket for node-bound routes
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:            s.cfg.RateLimit.Enabled,
		RequestsPerMin:     s.cfg.RateLimit.RequestsPerMin,
		BurstSize:          s.cfg.RateLimit.BurstSize,
		NodeRequestsPerMin: s.cfg.RateLimit.NodeRequestsPerMin,
		NodeBurstSize:      s.cfg.RateLimit.NodeBurstSize,
		CleanupMinutes:     s.cfg.RateLimit.CleanupMinutes,
	}))

	// 5. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 6. CORS; the web UI calls the API from another origin
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	dexHandler := dexTransport.NewHandler(s.dexSvc)
	historyHandler := deploysTransport.NewHandler(s.historySvc)

	s.router.Route("/api/v1", func(r chi.Router) {
		dexHandler.RegisterRoutes(r)
		r.Route("/history", historyHandler.RegisterRoutes)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports ready once the configured node answers
// info_get_status with a supported API version.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status, err := s.dexSvc.CheckNode(ctx)
	if err != nil {
		code := "NODE_UNAVAILABLE"
		if errors.Is(err, validation.ErrNodeTooOld) {
			code = "NODE_INCOMPATIBLE"
		}
		s.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ready",
		"chainName":  status.ChainspecName,
		"apiVersion": status.APIVersion,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
