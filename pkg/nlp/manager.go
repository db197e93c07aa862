// Package nlp composes the parsing and embedding services behind a single
// facade, and runs the health monitor that watches and recovers them.
//
// [Manager] is an explicitly constructed, dependency-injected object: build
// one in the composition root and hand it to whatever needs NLP. There is no
// package-level singleton.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/karen-ai/nlpcore/internal/observe"
	"github.com/karen-ai/nlpcore/pkg/embedding"
	"github.com/karen-ai/nlpcore/pkg/memoryindex"
	"github.com/karen-ai/nlpcore/pkg/parsing"
	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// ErrNoMemoryIndex is returned by index-backed operations when the manager
// was built without a memory index.
var ErrNoMemoryIndex = errors.New("nlp: no memory index configured")

// Manager is the facade over both NLP services. All methods are safe for
// concurrent use.
type Manager struct {
	parsing   *parsing.Service
	embedding *embedding.Service
	monitor   *Monitor
	index     memoryindex.Index
	metrics   *observe.Metrics
}

// Option is a functional option for Manager.
type Option func(*Manager)

// WithMemoryIndex attaches a persistent vector index, enabling IndexText and
// SearchSimilar.
func WithMemoryIndex(idx memoryindex.Index) Option {
	return func(m *Manager) {
		m.index = idx
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

// New constructs the manager and its health monitor. The monitor is not
// started — call [Manager.Monitor].Start once the composition root is ready.
func New(p *parsing.Service, e *embedding.Service, monitorCfg MonitorConfig, opts ...Option) (*Manager, error) {
	if p == nil || e == nil {
		return nil, fmt.Errorf("nlp: both services are required")
	}
	m := &Manager{
		parsing:   p,
		embedding: e,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.monitor = newMonitor(m, monitorCfg, m.metrics)
	return m, nil
}

// Monitor returns the manager's health monitor.
func (m *Manager) Monitor() *Monitor {
	return m.monitor
}

// Parse delegates to the parsing service.
func (m *Manager) Parse(ctx context.Context, text string) (*parsing.Result, error) {
	return m.parsing.Parse(ctx, text)
}

// Embed delegates to the embedding service.
func (m *Manager) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedding.Embed(ctx, text)
}

// EmbedAll delegates to the embedding service.
func (m *Manager) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedding.EmbedAll(ctx, texts)
}

// BatchEmbed delegates to the embedding service. batchSize <= 0 uses the
// configured default.
func (m *Manager) BatchEmbed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	return m.embedding.BatchEmbed(ctx, texts, batchSize)
}

// Classify delegates to the embedding service's template classifier.
func (m *Manager) Classify(ctx context.Context, text string, kind embedding.ClassificationType) (embedding.Classification, error) {
	return m.embedding.Classify(ctx, text, kind)
}

// DetectIntent delegates to the embedding service.
func (m *Manager) DetectIntent(ctx context.Context, text string) (embedding.Intent, error) {
	return m.embedding.DetectIntent(ctx, text)
}

// AnalyzeSentiment delegates to the embedding service.
func (m *Manager) AnalyzeSentiment(ctx context.Context, text string) (embedding.Sentiment, error) {
	return m.embedding.AnalyzeSentiment(ctx, text)
}

// FullResult joins a parse and an embedding of the same text.
type FullResult struct {
	Parsed             *parsing.Result `json:"parsed"`
	Embedding          []float32       `json:"embedding"`
	EmbeddingDimension int             `json:"embedding_dimension"`
}

// ProcessFull parses and embeds the text concurrently — the two calls have
// no ordering dependency — and joins the results.
func (m *Manager) ProcessFull(ctx context.Context, text string) (*FullResult, error) {
	var (
		parsed *parsing.Result
		vector []float32
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		parsed, err = m.parsing.Parse(ctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		vector, err = m.embedding.Embed(ctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &FullResult{
		Parsed:             parsed,
		Embedding:          vector,
		EmbeddingDimension: m.embedding.Dimension(),
	}, nil
}

// EntityEmbedding pairs one extracted entity with its embedding vector.
type EntityEmbedding struct {
	Entity     parser.Entity `json:"entity"`
	Confidence float64       `json:"confidence"`
	Vector     []float32     `json:"vector"`
}

// EntitiesWithEmbeddings parses the text, then embeds every entity's surface
// form in one batched call and zips the results positionally.
func (m *Manager) EntitiesWithEmbeddings(ctx context.Context, text string) ([]EntityEmbedding, error) {
	parsed, err := m.parsing.Parse(ctx, text)
	if err != nil {
		return nil, err
	}
	scored := parsing.ExtractEntities(parsed)
	if len(scored) == 0 {
		return nil, nil
	}

	texts := make([]string, len(scored))
	for i, e := range scored {
		texts[i] = e.Text
	}
	vectors, err := m.embedding.EmbedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]EntityEmbedding, len(scored))
	for i, e := range scored {
		out[i] = EntityEmbedding{
			Entity:     e.Entity,
			Confidence: e.Confidence,
			Vector:     vectors[i],
		}
	}
	return out, nil
}

// SemanticSimilarity embeds both texts in one batched call and returns their
// cosine similarity. Zero-norm vectors yield 0.0 rather than an error.
func (m *Manager) SemanticSimilarity(ctx context.Context, text1, text2 string) (float64, error) {
	vectors, err := m.embedding.EmbedAll(ctx, []string{text1, text2})
	if err != nil {
		return 0, err
	}
	return embedding.Cosine(vectors[0], vectors[1]), nil
}

// Ready reports whether the system is usable end to end: both services
// healthy, or both in fallback mode. A half-fallback state reports not
// ready; that disjunction is deliberate and mirrors the alerting model.
func (m *Manager) Ready() bool {
	bothHealthy := m.parsing.Healthy() && m.embedding.Healthy()
	bothFallback := m.parsing.FallbackActive() && m.embedding.FallbackActive()
	return bothHealthy || bothFallback
}

// Health assembles the current system snapshot with derived alerts.
func (m *Manager) Health() SystemHealth {
	p := m.parsing.Health()
	e := m.embedding.Health()

	t := m.monitor.thresholds
	alerts := deriveAlerts(parsingView(p), t)
	alerts = append(alerts, deriveAlerts(embeddingView(e), t)...)

	return SystemHealth{
		Time:      time.Now(),
		Parsing:   p,
		Embedding: e,
		Healthy:   m.parsing.Healthy() && m.embedding.Healthy(),
		Ready:     m.Ready(),
		Alerts:    alerts,
	}
}

// Summary is the compact health rendering served on dashboards.
type Summary struct {
	Status         string   `json:"status"`
	Ready          bool     `json:"ready"`
	ParsingStatus  string   `json:"parsing_status"`
	EmbedStatus    string   `json:"embedding_status"`
	AlertCount     int      `json:"alert_count"`
	Alerts         []string `json:"alerts,omitempty"`
	MonitorRunning bool     `json:"monitor_running"`
}

// HealthSummary condenses the full snapshot into a few top-level fields.
func (m *Manager) HealthSummary() Summary {
	snap := m.Health()
	status := "unhealthy"
	switch {
	case snap.Healthy:
		status = "healthy"
	case snap.Ready:
		status = "degraded"
	}
	return Summary{
		Status:         status,
		Ready:          snap.Ready,
		ParsingStatus:  snap.Parsing.Status,
		EmbedStatus:    snap.Embedding.Status,
		AlertCount:     len(snap.Alerts),
		Alerts:         snap.Alerts,
		MonitorRunning: m.monitor.Running(),
	}
}

// Reload cascades a model reload to both services. Empty model names reload
// the currently configured models. Both reloads are attempted regardless of
// individual failures; errors are joined.
func (m *Manager) Reload(ctx context.Context, parserModel, encoderModel string) error {
	return errors.Join(
		m.parsing.Reload(ctx, parserModel),
		m.embedding.Reload(ctx, encoderModel),
	)
}

// ClearAllCaches drops both services' caches.
func (m *Manager) ClearAllCaches() {
	m.parsing.ClearCache()
	m.embedding.ClearCache()
}

// ResetAllMetrics zeroes both services' counters and time windows.
func (m *Manager) ResetAllMetrics() {
	m.parsing.ResetMetrics()
	m.embedding.ResetMetrics()
}

// Info describes the composed system's configuration.
type Info struct {
	ParserModel        string `json:"parser_model"`
	EncoderModel       string `json:"encoder_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	MemoryIndex        bool   `json:"memory_index"`
	Ready              bool   `json:"ready"`
}

// ServiceInfo returns the composed system's configuration summary.
func (m *Manager) ServiceInfo() Info {
	return Info{
		ParserModel:        m.parsing.Model(),
		EncoderModel:       m.embedding.Model(),
		EmbeddingDimension: m.embedding.Dimension(),
		MemoryIndex:        m.index != nil,
		Ready:              m.Ready(),
	}
}

// IndexText embeds the text and stores it in the memory index under id.
// Returns [ErrNoMemoryIndex] when no index is attached.
func (m *Manager) IndexText(ctx context.Context, id, text string) error {
	if m.index == nil {
		return ErrNoMemoryIndex
	}
	vector, err := m.embedding.Embed(ctx, text)
	if err != nil {
		return err
	}
	return m.index.Upsert(ctx, memoryindex.Entry{
		ID:     id,
		Text:   text,
		Vector: vector,
		Model:  m.embedding.Model(),
	})
}

// SearchSimilar embeds the query and returns the limit nearest indexed
// texts by cosine distance. Returns [ErrNoMemoryIndex] when no index is
// attached.
func (m *Manager) SearchSimilar(ctx context.Context, query string, limit int) ([]memoryindex.Match, error) {
	if m.index == nil {
		return nil, ErrNoMemoryIndex
	}
	vector, err := m.embedding.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return m.index.Search(ctx, vector, limit)
}
