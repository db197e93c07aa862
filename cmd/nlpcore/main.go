// Command nlpcore runs the NLP core service: text parsing and embedding
// behind one facade, with health probes and Prometheus metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karen-ai/nlpcore/internal/config"
	"github.com/karen-ai/nlpcore/internal/health"
	"github.com/karen-ai/nlpcore/internal/observe"
	"github.com/karen-ai/nlpcore/internal/resilience"
	"github.com/karen-ai/nlpcore/pkg/embedding"
	"github.com/karen-ai/nlpcore/pkg/memoryindex"
	pgindex "github.com/karen-ai/nlpcore/pkg/memoryindex/postgres"
	"github.com/karen-ai/nlpcore/pkg/nlp"
	"github.com/karen-ai/nlpcore/pkg/parsing"
	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
	"github.com/karen-ai/nlpcore/pkg/provider/encoder/bertd"
	oaiencoder "github.com/karen-ai/nlpcore/pkg/provider/encoder/openai"
	"github.com/karen-ai/nlpcore/pkg/provider/parser"
	"github.com/karen-ai/nlpcore/pkg/provider/parser/spacyd"
)

// version is stamped at build time via -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nlpcore: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nlpcore: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("nlpcore starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "nlpcore",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Services ──────────────────────────────────────────────────────────────
	parsingSvc, err := buildParsing(cfg, metrics)
	if err != nil {
		slog.Error("failed to build parsing service", "err", err)
		return 1
	}

	embeddingSvc, err := buildEmbedding(cfg, metrics)
	if err != nil {
		slog.Error("failed to build embedding service", "err", err)
		return 1
	}

	// ── Memory index (optional) ───────────────────────────────────────────────
	var index memoryindex.Index
	managerOpts := []nlp.Option{nlp.WithMetrics(metrics)}
	if dsn := cfg.MemoryIndex.PostgresDSN; dsn != "" {
		idx, err := pgindex.New(ctx, dsn, cfg.Embedding.Dimension)
		if err != nil {
			slog.Error("failed to connect memory index", "err", err)
			return 1
		}
		defer idx.Close()
		index = idx
		managerOpts = append(managerOpts, nlp.WithMemoryIndex(idx))
		slog.Info("memory index connected", "dimension", cfg.Embedding.Dimension)
	}

	// ── Manager + monitor ─────────────────────────────────────────────────────
	manager, err := nlp.New(parsingSvc, embeddingSvc, nlp.MonitorConfig{
		Interval:         cfg.Monitor.Interval.Std(),
		FailureThreshold: cfg.Monitor.FailureThreshold,
		HistorySize:      cfg.Monitor.HistorySize,
		Thresholds: nlp.Thresholds{
			MaxErrorCount:        cfg.Monitor.MaxErrorCount,
			MinCacheHitRate:      cfg.Monitor.MinCacheHitRate,
			MaxAvgProcessingTime: cfg.Monitor.MaxAvgProcessingTime.Std(),
		},
	}, managerOpts...)
	if err != nil {
		slog.Error("failed to build nlp manager", "err", err)
		return 1
	}

	loadInitialModels(ctx, cfg, parsingSvc, embeddingSvc)

	manager.Monitor().Start()
	defer manager.Monitor().Stop()

	info := manager.ServiceInfo()
	slog.Info("nlp manager ready",
		"parser_model", info.ParserModel,
		"encoder_model", info.EncoderModel,
		"dimension", info.EmbeddingDimension,
		"ready", manager.Ready(),
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	if cfg.Server.ListenAddr == "" {
		slog.Info("no listen address configured — running headless, press Ctrl+C to shut down")
		<-ctx.Done()
		return 0
	}

	srv := newServer(cfg.Server.ListenAddr, manager, index, metrics)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("http server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Service wiring ────────────────────────────────────────────────────────────

// buildParsing constructs the parsing service from config. An empty base URL
// means no sidecar is reachable; the service then runs on the heuristic
// fallback (config validation has already rejected the no-path combination).
func buildParsing(cfg *config.Config, metrics *observe.Metrics) (*parsing.Service, error) {
	var (
		provider parser.Provider
		opts     = []parsing.Option{parsing.WithMetrics(metrics)}
	)

	if cfg.Parsing.BaseURL != "" {
		var spacydOpts []spacyd.Option
		if len(cfg.Parsing.DisabledComponents) > 0 {
			spacydOpts = append(spacydOpts, spacyd.WithDisabledComponents(cfg.Parsing.DisabledComponents...))
		}
		p, err := spacyd.New(cfg.Parsing.BaseURL, cfg.Parsing.Model, spacydOpts...)
		if err != nil {
			return nil, fmt.Errorf("create parser backend: %w", err)
		}
		provider = p
		opts = append(opts, parsing.WithBreaker(resilience.NewCircuitBreaker(
			resilience.CircuitBreakerConfig{Name: "spacyd"},
		)))
		slog.Info("parser backend configured", "base_url", cfg.Parsing.BaseURL, "model", cfg.Parsing.Model)
	} else {
		slog.Info("no parser backend configured — heuristic fallback only")
	}

	return parsing.New(provider, parsing.Config{
		Model:          cfg.Parsing.Model,
		CacheSize:      cfg.Parsing.CacheSize,
		CacheTTL:       cfg.Parsing.CacheTTL.Std(),
		EnableFallback: cfg.Parsing.FallbackEnabled(),
		AutoDownload:   cfg.Parsing.AutoDownload,
	}, opts...)
}

// buildEmbedding constructs the embedding service from config, selecting the
// encoder backend by name ("bertd" default, "openai" for the hosted API).
func buildEmbedding(cfg *config.Config, metrics *observe.Metrics) (*embedding.Service, error) {
	var (
		provider encoder.Provider
		opts     = []embedding.Option{embedding.WithMetrics(metrics)}
	)

	switch cfg.Embedding.Provider {
	case "openai":
		var oaiOpts []oaiencoder.Option
		if cfg.Embedding.BaseURL != "" {
			oaiOpts = append(oaiOpts, oaiencoder.WithBaseURL(cfg.Embedding.BaseURL))
		}
		p, err := oaiencoder.New(cfg.Embedding.APIKey, cfg.Embedding.Model, oaiOpts...)
		if err != nil {
			return nil, fmt.Errorf("create openai encoder: %w", err)
		}
		provider = p
		opts = append(opts, embedding.WithBreaker(resilience.NewCircuitBreaker(
			resilience.CircuitBreakerConfig{Name: "openai"},
		)))
		slog.Info("encoder backend configured", "provider", "openai", "model", cfg.Embedding.Model)

	default: // "bertd"
		if cfg.Embedding.BaseURL == "" {
			slog.Info("no encoder backend configured — hash fallback only")
			break
		}
		p, err := bertd.New(cfg.Embedding.BaseURL, cfg.Embedding.Model,
			bertd.WithMaxLength(cfg.Embedding.MaxLength),
			bertd.WithDimensions(cfg.Embedding.Dimension),
			bertd.WithGPU(cfg.Embedding.EnableGPU),
		)
		if err != nil {
			return nil, fmt.Errorf("create bertd encoder: %w", err)
		}
		provider = p
		opts = append(opts, embedding.WithBreaker(resilience.NewCircuitBreaker(
			resilience.CircuitBreakerConfig{Name: "bertd"},
		)))
		slog.Info("encoder backend configured", "provider", "bertd", "base_url", cfg.Embedding.BaseURL, "model", cfg.Embedding.Model)
	}

	return embedding.New(provider, embedding.Config{
		Model:           cfg.Embedding.Model,
		Dimension:       cfg.Embedding.Dimension,
		PoolingStrategy: string(cfg.Embedding.PoolingStrategy),
		MaxLength:       cfg.Embedding.MaxLength,
		BatchSize:       cfg.Embedding.BatchSize,
		CacheSize:       cfg.Embedding.CacheSize,
		CacheTTL:        cfg.Embedding.CacheTTL.Std(),
		EnableFallback:  cfg.Embedding.FallbackEnabled(),
	}, opts...)
}

// loadInitialModels performs the best-effort initial model load for every
// configured backend. A failure is logged, not fatal: the services cover it
// with their fallback paths and the monitor retries via recovery.
func loadInitialModels(ctx context.Context, cfg *config.Config, p *parsing.Service, e *embedding.Service) {
	loadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if cfg.Parsing.BaseURL != "" {
		if err := p.Reload(loadCtx, cfg.Parsing.Model); err != nil {
			slog.Warn("initial parser model load failed — continuing in fallback mode",
				"model", cfg.Parsing.Model, "err", err)
		}
	}
	if cfg.Embedding.Provider == "openai" || cfg.Embedding.BaseURL != "" {
		if err := e.Reload(loadCtx, cfg.Embedding.Model); err != nil {
			slog.Warn("initial encoder model load failed — continuing in fallback mode",
				"model", cfg.Embedding.Model, "err", err)
		}
	}
}

// ── HTTP surface ──────────────────────────────────────────────────────────────

// newServer assembles the probe + metrics mux wrapped in the tracing
// middleware.
func newServer(addr string, manager *nlp.Manager, index memoryindex.Index, metrics *observe.Metrics) *http.Server {
	checkers := []health.Checker{
		{
			Name: "nlp",
			Check: func(context.Context) error {
				if !manager.Ready() {
					return errors.New("services not ready")
				}
				return nil
			},
		},
	}
	if index != nil {
		checkers = append(checkers, health.Checker{Name: "memory_index", Check: index.Ping})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
