package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/audit"
	"github.com/raaihank/medscrub/internal/config"
	"github.com/raaihank/medscrub/internal/events"
	"github.com/raaihank/medscrub/internal/logger"
	"github.com/raaihank/medscrub/internal/scrub"
	"github.com/raaihank/medscrub/internal/web"
)

// Server exposes the scrub pipeline over HTTP.
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	scrubber   *scrub.Scrubber
	router     *mux.Router
	server     *http.Server
	hub        *events.Hub
	auditStore *audit.Store
	limiters   *ipLimiters
	startTime  time.Time
	scrubCount int64
}

// New creates a server around an already constructed scrubber. The audit
// store is optional; pass nil when persistence is disabled.
func New(cfg *config.Config, log *logger.Logger, scrubber *scrub.Scrubber, auditStore *audit.Store) *Server {
	hub := events.NewHub(&cfg.Events.Hub, log.WithComponent("events").Logger)

	s := &Server{
		config:     cfg,
		logger:     log.WithComponent("server"),
		scrubber:   scrubber,
		router:     mux.NewRouter(),
		hub:        hub,
		auditStore: auditStore,
		limiters:   newIPLimiters(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst),
		startTime:  time.Now(),
	}

	// Stream stage transitions to monitoring clients.
	scrubber.SetObserver(func(ev scrub.StageEvent) {
		hub.BroadcastEvent(events.Event{
			Type:      events.EventTypeScrubStage,
			Timestamp: time.Now(),
			Data: events.ScrubStageEvent{
				Stage:      string(ev.Stage),
				Detections: ev.Detections,
			},
		})
	})

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Monitoring dashboard - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	if s.config.Events.Enabled {
		s.router.HandleFunc(s.config.Events.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.config.Server.RateLimit.Enabled {
		api.Use(s.rateLimitMiddleware)
	}
	api.HandleFunc("/scrub", s.handleScrub).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting medscrub server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("statistical", s.config.Scrub.EnableStatistical),
		zap.Bool("events", s.config.Events.Enabled),
		zap.Bool("audit_sink", s.auditStore != nil),
	)

	go s.hub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping medscrub server")
	return s.server.Shutdown(ctx)
}

// GetEventHub returns the hub for broadcasting events
func (s *Server) GetEventHub() *events.Hub {
	return s.hub
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

func (s *Server) totalScrubs() int64 {
	return atomic.LoadInt64(&s.scrubCount)
}
