// Package embedding implements the embedding half of the NLP core: it wraps
// an [encoder.Provider] with a TTL result cache, per-call metrics, and a
// deterministic hash-based fallback used when the encoder is unavailable.
//
// Every successful call returns a vector of exactly the configured dimension,
// whichever path produced it. Encoder vectors are L2-normalized; fallback
// vectors are already bounded to [-1, 1) and are left as-is.
package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/karen-ai/nlpcore/internal/cache"
	"github.com/karen-ai/nlpcore/internal/observe"
	"github.com/karen-ai/nlpcore/internal/resilience"
	"github.com/karen-ai/nlpcore/internal/stats"
	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
)

// DefaultDimension is the vector length used when none is configured. It
// matches the hidden-state width of the distilbert family.
const DefaultDimension = 768

// Config holds the embedding service's tuning knobs.
type Config struct {
	// Model is the encoder model identifier, e.g. "distilbert-base-uncased".
	Model string

	// Dimension is the vector length every call returns. Default:
	// [DefaultDimension].
	Dimension int

	// PoolingStrategy collapses token hidden states into one vector: "mean"
	// (default), "cls" or "max". Ignored by backends that pool server-side.
	PoolingStrategy string

	// MaxLength is the token truncation length, recorded in the cache key so
	// entries from different truncation settings never collide. Default: 512.
	MaxLength int

	// BatchSize is the chunk size used by BatchEmbed. Default: 32.
	BatchSize int

	// CacheSize and CacheTTL bound the result cache. Zero values use the
	// cache package defaults.
	CacheSize int
	CacheTTL  time.Duration

	// EnableFallback permits degrading to the hash-based pseudo-embedding
	// when the encoder is unavailable or a call fails.
	EnableFallback bool
}

// Service computes embeddings with caching, metrics and fallback. It is safe
// for concurrent use.
type Service struct {
	provider encoder.Provider // nil when constructed in forced fallback mode

	dimension      int
	pooling        string
	maxLength      int
	batchSize      int
	enableFallback bool

	cache   *cache.Cache[cached]
	stats   *stats.Recorder
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics

	mu            sync.Mutex
	model         string
	keyPrefix     string
	usingFallback bool
}

// cached is the cache value: the final vector plus which path produced it,
// so repeated calls report consistent metadata.
type cached struct {
	vector       []float32
	usedFallback bool
}

// Option is a functional option for Service.
type Option func(*Service)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBreaker guards encoder calls with the given circuit breaker. Without
// one, every call reaches the backend even during an outage.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = cb
	}
}

// New constructs the embedding service.
//
// provider may be nil when no encoder backend is reachable; in that case
// cfg.EnableFallback must be true or construction fails, since the service
// would have no way to produce vectors at all.
func New(provider encoder.Provider, cfg Config, opts ...Option) (*Service, error) {
	if provider == nil && !cfg.EnableFallback {
		return nil, fmt.Errorf("embedding: no encoder backend and fallback is disabled")
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("embedding: dimension must not be negative, got %d", cfg.Dimension)
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	switch cfg.PoolingStrategy {
	case "":
		cfg.PoolingStrategy = "mean"
	case "mean", "cls", "max":
	default:
		return nil, fmt.Errorf("embedding: unknown pooling strategy %q", cfg.PoolingStrategy)
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	s := &Service{
		provider:       provider,
		dimension:      cfg.Dimension,
		pooling:        cfg.PoolingStrategy,
		maxLength:      cfg.MaxLength,
		batchSize:      cfg.BatchSize,
		enableFallback: cfg.EnableFallback,
		cache:          cache.New[cached](cfg.CacheSize, cfg.CacheTTL),
		stats:          stats.NewRecorder(0),
		model:          cfg.Model,
		usingFallback:  provider == nil,
	}
	s.keyPrefix = keyPrefix(cfg.Model, cfg.PoolingStrategy, cfg.MaxLength)

	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// keyPrefix derives the configuration signature included in every cache key,
// so entries computed under a different model, pooling strategy or
// truncation length never collide.
func keyPrefix(model, pooling string, maxLength int) string {
	sig := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", model, pooling, maxLength)))
	return "embed:" + hex.EncodeToString(sig[:])[:8] + ":"
}

func (s *Service) cacheKey(text string) string {
	s.mu.Lock()
	prefix := s.keyPrefix
	s.mu.Unlock()
	h := md5.Sum([]byte(text))
	return prefix + hex.EncodeToString(h[:])
}

// Embed computes the embedding for a single text. Empty or whitespace-only
// input returns a zero vector of the configured dimension without touching
// the cache or the backend. Encoder vectors are normalized to unit length.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embedding couples one vector with its provenance, mirroring the metadata
// a [*parsing.Result] carries: which path produced it and under which model.
// The vector is the caller's to keep — it never aliases a cache entry.
type Embedding struct {
	Vector []float32 `json:"vector"`

	// Model is the encoder model that produced the vector, or "fallback"
	// when the hash path did.
	Model string `json:"model"`

	UsedFallback bool `json:"used_fallback"`
}

// EmbedAll computes embeddings for a slice of texts, preserving order.
// Empty entries map to zero vectors; cached entries are served without a
// backend call; the remainder goes to the encoder in one batch. When a
// backend call fails and fallback is enabled, the affected texts get
// deterministic fallback vectors instead of aborting the batch.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	embs, err := s.EmbedFull(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(embs))
	for i, e := range embs {
		out[i] = e.Vector
	}
	return out, nil
}

// EmbedFull is EmbedAll with per-vector provenance. In a mixed batch the
// flags can differ per entry: a vector cached during an outage stays flagged
// as fallback even after the encoder recovers, until the cache entry expires
// or the model is reloaded.
func (s *Service) EmbedFull(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := s.Model()
	out := make([]Embedding, len(texts))

	// Resolve empties and cache hits first; collect the rest.
	var pendingIdx []int
	var pendingTexts []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = Embedding{Vector: make([]float32, s.dimension), Model: model}
			continue
		}
		if ent, ok := s.cache.Get(s.cacheKey(text)); ok {
			s.stats.Hit()
			s.metrics.RecordCacheLookup(ctx, "embedding", "hit")
			out[i] = toEmbedding(ent, model)
			continue
		}
		s.stats.Miss()
		s.metrics.RecordCacheLookup(ctx, "embedding", "miss")
		pendingIdx = append(pendingIdx, i)
		pendingTexts = append(pendingTexts, text)
	}
	if len(pendingIdx) == 0 {
		return out, nil
	}

	vectors, usedFallback, err := s.compute(ctx, pendingTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range pendingIdx {
		ent := cached{vector: vectors[j], usedFallback: usedFallback}
		s.cache.Put(s.cacheKey(pendingTexts[j]), ent)
		out[i] = toEmbedding(ent, model)
	}
	return out, nil
}

// toEmbedding renders a cache entry for a caller: the vector is copied so
// later mutation by the caller cannot corrupt the cached value.
func toEmbedding(ent cached, model string) Embedding {
	if ent.usedFallback {
		model = "fallback"
	}
	return Embedding{
		Vector:       cloneVector(ent.vector),
		Model:        model,
		UsedFallback: ent.usedFallback,
	}
}

// BatchEmbed partitions texts into chunks of batchSize (the configured batch
// size when batchSize <= 0) and embeds each chunk, concatenating results in
// input order. The chunking only bounds peak memory; output is identical to
// a single EmbedAll call.
func (s *Service) BatchEmbed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := s.EmbedAll(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// compute runs the encoder (or the fallback) for texts that were neither
// empty nor cached. Returns one vector per text, in order.
func (s *Service) compute(ctx context.Context, texts []string) (vectors [][]float32, usedFallback bool, err error) {
	if s.provider == nil {
		start := time.Now()
		vectors = s.fallbackAll(ctx, texts)
		elapsed := time.Since(start)
		s.stats.Observe(elapsed)
		s.metrics.EmbedDuration.Record(ctx, elapsed.Seconds())
		return vectors, true, nil
	}

	start := time.Now()
	var encs []*encoder.Encoding
	call := func() error {
		var callErr error
		encs, callErr = s.provider.EncodeBatch(ctx, texts)
		return callErr
	}
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	s.stats.Observe(time.Since(start))
	s.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		s.stats.RecordError(err)
		s.metrics.RecordServiceError(ctx, "embedding")
		if !s.enableFallback {
			return nil, false, fmt.Errorf("embedding: encode: %w", err)
		}
		s.setUsingFallback(true)
		return s.fallbackAll(ctx, texts), true, nil
	}

	s.setUsingFallback(false)
	vectors = make([][]float32, len(texts))
	for i, enc := range encs {
		v := pool(enc, s.pooling)
		v = fitDimension(v, s.dimension)
		vectors[i] = Normalize(v)
	}
	return vectors, false, nil
}

// fallbackAll produces deterministic fallback vectors for every text.
func (s *Service) fallbackAll(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = fallbackVector(text, s.dimension)
	}
	s.metrics.RecordFallback(ctx, "embedding")
	return out
}

// fitDimension pads v with zeros or truncates it so len == dim. Encoder
// output normally matches the configured dimension already; this guards the
// invariant when it does not.
func fitDimension(v []float32, dim int) []float32 {
	switch {
	case len(v) == dim:
		return v
	case len(v) > dim:
		return v[:dim]
	default:
		out := make([]float32, dim)
		copy(out, v)
		return out
	}
}

// Reload switches the encoder to model (or re-loads the current model when
// model is empty). On success the cache is cleared, fallback mode ends and
// the circuit breaker resets. On failure the previous model keeps serving
// and the error is returned; callers running with fallback enabled may treat
// it as non-fatal.
func (s *Service) Reload(ctx context.Context, model string) error {
	if model == "" {
		model = s.Model()
	}
	if s.provider == nil {
		if s.enableFallback {
			return fmt.Errorf("embedding: reload: no encoder backend, staying in fallback mode")
		}
		return fmt.Errorf("embedding: reload: no encoder backend configured")
	}

	if err := s.provider.LoadModel(ctx, model); err != nil {
		return fmt.Errorf("embedding: reload model %q: %w", model, err)
	}

	s.mu.Lock()
	s.model = model
	s.keyPrefix = keyPrefix(model, s.pooling, s.maxLength)
	s.usingFallback = false
	s.mu.Unlock()

	// Stale vectors reference the old model.
	s.cache.Clear()
	if s.breaker != nil {
		s.breaker.Reset()
	}
	return nil
}

// ClearCache drops all cached vectors.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// ResetMetrics zeroes hit/miss counters, the rolling time window and the
// sticky error state.
func (s *Service) ResetMetrics() {
	s.stats.Reset()
}

// Model returns the configured encoder model identifier.
func (s *Service) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Dimension returns the vector length every call produces.
func (s *Service) Dimension() int {
	return s.dimension
}

func (s *Service) setUsingFallback(v bool) {
	s.mu.Lock()
	s.usingFallback = v
	s.mu.Unlock()
}

// FallbackActive reports whether the last backend interaction degraded to
// the hash fallback (or the service was built without a backend).
func (s *Service) FallbackActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingFallback
}

// ModelLoaded reports whether a real encoder backend is attached.
func (s *Service) ModelLoaded() bool {
	return s.provider != nil
}

// Healthy reports whether the service runs on the real encoder path.
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
	Dimension         int           `json:"dimension"`
	PoolingStrategy   string        `json:"pooling_strategy"`
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
		Dimension:         s.dimension,
		PoolingStrategy:   s.pooling,
		CacheSize:         s.cache.Len(),
		CacheHits:         snap.Hits,
		CacheMisses:       snap.Misses,
		CacheHitRate:      snap.HitRate,
		AvgProcessingTime: snap.AvgDuration,
		ErrorCount:        snap.ErrorCount,
		LastError:         snap.LastError,
	}
}
