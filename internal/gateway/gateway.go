// Package gateway is the front door: it accepts canonical chat-completion
// requests, resolves the target provider, and hands the request to the
// streaming pipeline.
//
// DESIGN: One Gateway per process. All shared state (registry, metrics,
// request log) is read-only or internally synchronized; per-request state
// lives entirely in the pipeline. The write timeout is configurable to zero
// because streaming responses are open-ended.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/candor-ai/chat-gateway/internal/backend"
	"github.com/candor-ai/chat-gateway/internal/config"
	"github.com/candor-ai/chat-gateway/internal/monitoring"
	"github.com/candor-ai/chat-gateway/internal/store"
	"github.com/candor-ai/chat-gateway/internal/stream"
	"github.com/candor-ai/chat-gateway/internal/tokenizer"
)

// DefaultRateLimit is requests per second per IP when config leaves it unset.
const DefaultRateLimit = 10

// Gateway wires the HTTP surface to the stream pipeline.
type Gateway struct {
	config       *config.Config
	registry     *backend.Registry
	orchestrator *stream.Orchestrator

	logger        *monitoring.Logger
	requestLogger *monitoring.RequestLogger
	metrics       *monitoring.MetricsCollector
	alerts        *monitoring.AlertManager
	rateLimiter   *rateLimiter
	requestLog    *store.RequestLog

	server *http.Server
}

// New builds a Gateway from config. requestLog may be nil when the store is
// disabled.
func New(cfg *config.Config, requestLog *store.RequestLog) (*Gateway, error) {
	registry, err := backend.NewRegistry(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	logger := monitoring.New(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	rate := cfg.Server.RateLimit
	if rate <= 0 {
		rate = DefaultRateLimit
	}

	g := &Gateway{
		config:   cfg,
		registry: registry,
		orchestrator: stream.NewOrchestrator(
			backend.NewBuilder(), &http.Client{}, stream.SystemClock(), tokenizer.New(),
		),
		logger:        logger,
		requestLogger: monitoring.NewRequestLogger(logger),
		metrics:       monitoring.NewMetricsCollector(),
		alerts: monitoring.NewAlertManager(logger, monitoring.AlertConfig{
			HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold,
		}),
		rateLimiter: newRateLimiter(rate),
		requestLog:  requestLog,
	}
	return g, nil
}

// Handler returns the full middleware-wrapped HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.HandleFunc("/stats", g.handleStats)

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	h = g.rateLimit(h)
	h = g.panicRecovery(h)
	return h
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", g.config.Server.Port),
		Handler:     g.Handler(),
		ReadTimeout: g.config.Server.ReadTimeout,
		// WriteTimeout stays zero unless configured: streams are open-ended.
		WriteTimeout: g.config.Server.WriteTimeout,
	}

	log.Info().
		Int("port", g.config.Server.Port).
		Strs("providers", g.registry.Names()).
		Msg("gateway listening")

	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.metrics.Stop()
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
