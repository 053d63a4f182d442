// Package api exposes the scheduling core over HTTP: route optimization,
// technician suggestion, complexity and time-slot estimates, conflict
// detection, and a live dispatch feed per technician (SSE and WebSocket).
package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"fieldops/internal/config"
	"fieldops/internal/opt"
	"fieldops/internal/schedule"
	"fieldops/internal/store"
	"fieldops/internal/webhooks"
)

type Server struct {
	Store     store.Store
	Cfg       config.Heuristics
	Optimizer *opt.Optimizer
	Assistant *schedule.Assistant
	Detector  *schedule.Detector
	Pub       *webhooks.Publisher
	Broker    EventBroker
	Locations *LocationCache
	Log       *zap.Logger
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store;
// if REDIS_URL is unset, the dispatch feed stays process-local.
func NewServer(cfg config.Heuristics, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
		log.Info("using in-memory store")
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Warn("migrations failed", zap.Error(err))
			}
		}
		s = sp
		log.Info("using postgres store")
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		rb, err := NewRedisBroker()
		if err != nil {
			log.Warn("redis broker unavailable, falling back to in-memory", zap.Error(err))
			broker = NewBroker()
		} else {
			broker = rb
			log.Info("using redis dispatch broker")
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Store:     s,
		Cfg:       cfg,
		Optimizer: opt.NewOptimizer(s, cfg),
		Assistant: schedule.NewAssistant(s, cfg),
		Detector:  schedule.NewDetector(s),
		Pub:       webhooks.NewPublisher(s, log),
		Broker:    broker,
		Locations: NewLocationCache(),
		Log:       log,
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	// Tenant comes from a header for now; production would decode a JWT.
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Log)
}
