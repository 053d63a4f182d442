package main

import (
	"bufio"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fieldops/internal/api"
	"fieldops/internal/buildinfo"
	"fieldops/internal/config"
	"fieldops/internal/metrics"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("heuristics config", zap.Error(err))
	}

	srv, err := api.NewServer(cfg, log)
	if err != nil {
		log.Fatal("failed to init server", zap.Error(err))
	}

	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Optimization
	mux.HandleFunc("/v1/routes/optimize", srv.OptimizeHandler)
	mux.HandleFunc("/v1/routes/runs", srv.OptimizationRunsHandler)

	// Jobs and scheduling assists
	mux.HandleFunc("/v1/jobs", srv.JobsHandler)
	mux.HandleFunc("/v1/jobs/", srv.JobByIDHandler) // includes /suggest-technicians, /complexity, /time-slot

	// Technicians
	mux.HandleFunc("/v1/technicians", srv.TechniciansHandler)
	mux.HandleFunc("/v1/technicians/", srv.TechnicianByIDHandler) // includes /location

	// Service types
	mux.HandleFunc("/v1/service-types", srv.ServiceTypesHandler)

	// Conflicts
	mux.HandleFunc("/v1/conflicts/detect", srv.ConflictsDetectHandler)
	mux.HandleFunc("/v1/conflicts", srv.ConflictsHandler)
	mux.HandleFunc("/v1/conflicts/", srv.ConflictByIDHandler)

	// Webhook subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Live dispatch feed
	mux.HandleFunc("/v1/dispatch/stream", srv.DispatchStreamHandler)
	mux.HandleFunc("/v1/dispatch/ws", srv.DispatchWSHandler)

	// Health and observability
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	limiter := api.NewTenantLimiter(50, 100)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           requestMiddleware(log, limiter.Middleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.NewWebhookWorker().Start()

	log.Info("API listening",
		zap.String("addr", addr),
		zap.String("version", buildinfo.Get().Version))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps the websocket upgrade working through the middleware wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func requestMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", dur),
			zap.String("remote", r.RemoteAddr))
	})
}
