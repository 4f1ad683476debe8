// Package daemon hosts the evaluation service over HTTP: health and
// metrics endpoints plus the RunEval stream on NDJSON and Connect
// transports.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/animus-coder/oraclebench/internal/config"
	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/llm/configbuilder"
	"github.com/animus-coder/oraclebench/internal/observability"
	evalrpc "github.com/animus-coder/oraclebench/internal/rpc/eval"
	"github.com/animus-coder/oraclebench/internal/scenario"
)

// Server hosts the daemon endpoints.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  evalrpc.Runner
	metrics *observability.Metrics
}

// NewServer constructs a daemon instance.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	metrics := observability.NewMetrics()
	generator := gen.New(registry, cfg.Pipeline.TokenFloor, logger)
	runner := &evalrpc.EvalRunner{Cfg: cfg, Gen: generator, Metrics: metrics, Logger: logger}

	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.HandleFunc("/scenarios", s.scenariosHandler)

	switch strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) {
	case "ndjson":
		mux.Handle("/eval/run", evalrpc.NewHandler(s.runner, s.metrics))
	default:
		path, handler := evalrpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
		// keep the NDJSON path available for plain HTTP clients
		mux.Handle("/eval/run", evalrpc.NewHandler(s.runner, s.metrics))
	}

	handler := http.Handler(mux)
	if strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting oraclebench daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down oraclebench daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) scenariosHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"scenarios": scenario.Names()})
}
