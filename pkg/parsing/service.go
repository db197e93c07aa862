// Package parsing implements the text-parsing half of the NLP core: it wraps
// a [parser.Provider] with a TTL result cache, per-call metrics, and a
// whitespace/regex heuristic fallback used when the parser is unavailable.
package parsing

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/karen-ai/nlpcore/internal/cache"
	"github.com/karen-ai/nlpcore/internal/observe"
	"github.com/karen-ai/nlpcore/internal/resilience"
	"github.com/karen-ai/nlpcore/internal/stats"
	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// Config holds the parsing service's tuning knobs.
type Config struct {
	// Model is the parser model identifier, e.g. "en_core_web_sm".
	Model string

	// CacheSize and CacheTTL bound the result cache. Zero values use the
	// cache package defaults.
	CacheSize int
	CacheTTL  time.Duration

	// EnableFallback permits degrading to the heuristic parse when the
	// parser is unavailable or a call fails.
	EnableFallback bool

	// AutoDownload makes Reload try a model download when the initial load
	// fails, then load again.
	AutoDownload bool
}

// Service parses text with caching, metrics and fallback. It is safe for
// concurrent use.
type Service struct {
	provider parser.Provider // nil when constructed in forced fallback mode

	enableFallback bool
	autoDownload   bool

	cache   *cache.Cache[*Result]
	stats   *stats.Recorder
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics

	mu            sync.Mutex
	model         string
	keyPrefix     string
	usingFallback bool
}

// Option is a functional option for Service.
type Option func(*Service)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBreaker guards parser calls with the given circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = cb
	}
}

// New constructs the parsing service.
//
// provider may be nil when no parser backend is reachable; in that case
// cfg.EnableFallback must be true or construction fails.
func New(provider parser.Provider, cfg Config, opts ...Option) (*Service, error) {
	if provider == nil && !cfg.EnableFallback {
		return nil, fmt.Errorf("parsing: no parser backend and fallback is disabled")
	}

	s := &Service{
		provider:       provider,
		enableFallback: cfg.EnableFallback,
		autoDownload:   cfg.AutoDownload,
		cache:          cache.New[*Result](cfg.CacheSize, cfg.CacheTTL),
		stats:          stats.NewRecorder(0),
		model:          cfg.Model,
		keyPrefix:      keyPrefix(cfg.Model),
		usingFallback:  provider == nil,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// keyPrefix derives the model signature included in every cache key, so
// results parsed under a different model never collide.
func keyPrefix(model string) string {
	sig := md5.Sum([]byte(model))
	return "parse:" + hex.EncodeToString(sig[:])[:8] + ":"
}

func (s *Service) cacheKey(text string) string {
	s.mu.Lock()
	prefix := s.keyPrefix
	s.mu.Unlock()
	h := md5.Sum([]byte(text))
	return prefix + hex.EncodeToString(h[:])
}

// Parse analyses a single text. Empty or whitespace-only input returns an
// empty fallback-flagged result immediately, bypassing cache and backend.
// Cache hits are returned unchanged — their recorded duration is the
// original processing time, and the rolling time window does not grow.
func (s *Service) Parse(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return emptyResult(), nil
	}

	key := s.cacheKey(text)
	if res, ok := s.cache.Get(key); ok {
		s.stats.Hit()
		s.metrics.RecordCacheLookup(ctx, "parsing", "hit")
		return res, nil
	}
	s.stats.Miss()
	s.metrics.RecordCacheLookup(ctx, "parsing", "miss")

	res, err := s.compute(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, res)
	return res, nil
}

// compute runs the backend parse (or the fallback) for one non-empty text.
func (s *Service) compute(ctx context.Context, text string) (*Result, error) {
	if s.provider == nil {
		start := time.Now()
		res := fallbackParse(text)
		res.Duration = time.Since(start)
		s.stats.Observe(res.Duration)
		s.metrics.ParseDuration.Record(ctx, res.Duration.Seconds())
		s.metrics.RecordFallback(ctx, "parsing")
		return res, nil
	}

	start := time.Now()
	var ann *parser.Annotations
	call := func() error {
		var callErr error
		ann, callErr = s.provider.Parse(ctx, text)
		return callErr
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	elapsed := time.Since(start)
	s.stats.Observe(elapsed)
	s.metrics.ParseDuration.Record(ctx, elapsed.Seconds())

	if err != nil {
		s.stats.RecordError(err)
		s.metrics.RecordServiceError(ctx, "parsing")
		if !s.enableFallback {
			return nil, fmt.Errorf("parsing: parse: %w", err)
		}
		s.setUsingFallback(true)
		res := fallbackParse(text)
		res.Duration = elapsed
		s.metrics.RecordFallback(ctx, "parsing")
		return res, nil
	}

	s.setUsingFallback(false)
	return fromAnnotations(ann, elapsed), nil
}

// fromAnnotations converts backend annotations into a Result, filling in
// empty (rather than nil) collections so callers never branch on nil.
func fromAnnotations(ann *parser.Annotations, elapsed time.Duration) *Result {
	res := &Result{
		Tokens:       ann.Tokens,
		Lemmas:       ann.Lemmas,
		Entities:     ann.Entities,
		POSTags:      ann.POSTags,
		NounPhrases:  ann.NounPhrases,
		Sentences:    ann.Sentences,
		Dependencies: ann.Dependencies,
		Language:     ann.Language,
		Duration:     elapsed,
	}
	if res.Tokens == nil {
		res.Tokens = []string{}
	}
	if res.Lemmas == nil {
		res.Lemmas = []string{}
	}
	if res.Entities == nil {
		res.Entities = []parser.Entity{}
	}
	if res.POSTags == nil {
		res.POSTags = []string{}
	}
	if res.NounPhrases == nil {
		res.NounPhrases = []string{}
	}
	if res.Sentences == nil {
		res.Sentences = []string{}
	}
	if res.Dependencies == nil {
		res.Dependencies = []parser.Dependency{}
	}
	if res.Language == "" {
		res.Language = "unknown"
	}
	return res
}

// Reload switches the parser to model (or re-loads the current model when
// model is empty). With AutoDownload enabled, a failed load triggers one
// download attempt followed by a second load. On success the cache is
// cleared, fallback mode ends and the circuit breaker resets; on failure the
// previous model keeps serving and the error is returned.
func (s *Service) Reload(ctx context.Context, model string) error {
	if model == "" {
		model = s.Model()
	}
	if s.provider == nil {
		if s.enableFallback {
			return fmt.Errorf("parsing: reload: no parser backend, staying in fallback mode")
		}
		return fmt.Errorf("parsing: reload: no parser backend configured")
	}

	err := s.provider.LoadModel(ctx, model)
	if err != nil && s.autoDownload {
		slog.Info("parser model load failed, attempting download",
			"model", model, "error", err)
		if dlErr := s.provider.DownloadModel(ctx, model); dlErr != nil {
			return fmt.Errorf("parsing: download model %q: %w", model, dlErr)
		}
		err = s.provider.LoadModel(ctx, model)
	}
	if err != nil {
		return fmt.Errorf("parsing: reload model %q: %w", model, err)
	}

	s.mu.Lock()
	s.model = model
	s.keyPrefix = keyPrefix(model)
	s.usingFallback = false
	s.mu.Unlock()

	// Stale results reference the old model.
	s.cache.Clear()
	if s.breaker != nil {
		s.breaker.Reset()
	}
	return nil
}

// ClearCache drops all cached results.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// ResetMetrics zeroes hit/miss counters, the rolling time window and the
// sticky error state.
func (s *Service) ResetMetrics() {
	s.stats.Reset()
}

// Model returns the configured parser model identifier.
func (s *Service) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Service) setUsingFallback(v bool) {
	s.mu.Lock()
	s.usingFallback = v
	s.mu.Unlock()
}

// FallbackActive reports whether the last backend interaction degraded to
// the heuristic parse (or the service was built without a backend).
func (s *Service) FallbackActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingFallback
}

// ModelLoaded reports whether a real parser backend is attached.
func (s *Service) ModelLoaded() bool {
	return s.provider != nil
}

// Healthy reports whether the service runs on the real parser path.
func (s *Service) Healthy() bool {
	return s.ModelLoaded() && !s.FallbackActive()
}

// Health is a point-in-time snapshot of the service's state, read by the
// health monitor and the readiness endpoint.
type Health struct {
	Status            string        `json:"status"`
	Model             string        `json:"model"`
	ModelLoaded       bool          `json:"model_loaded"`
	FallbackActive    bool          `json:"fallback_active"`
	CacheSize         int           `json:"cache_size"`
	CacheHits         uint64        `json:"cache_hits"`
	CacheMisses       uint64        `json:"cache_misses"`
	CacheHitRate      float64       `json:"cache_hit_rate"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	ErrorCount        int           `json:"error_count"`
	LastError         string        `json:"last_error,omitempty"`
}

// Health returns the current snapshot.
func (s *Service) Health() Health {
	snap := s.stats.Snapshot()

	status := "unhealthy"
	switch {
	case s.Healthy():
		status = "healthy"
	case s.enableFallback:
		status = "degraded"
	}

	return Health{
		Status:            status,
		Model:             s.Model(),
		ModelLoaded:       s.ModelLoaded(),
		FallbackActive:    s.FallbackActive(),
		CacheSize:         s.cache.Len(),
		CacheHits:         snap.Hits,
		CacheMisses:       snap.Misses,
		CacheHitRate:      snap.HitRate,
		AvgProcessingTime: snap.AvgDuration,
		ErrorCount:        snap.ErrorCount,
		LastError:         snap.LastError,
	}
}
