package nlp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/karen-ai/nlpcore/pkg/embedding"
	"github.com/karen-ai/nlpcore/pkg/parsing"
	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
	encmock "github.com/karen-ai/nlpcore/pkg/provider/encoder/mock"
	"github.com/karen-ai/nlpcore/pkg/provider/parser"
	parsemock "github.com/karen-ai/nlpcore/pkg/provider/parser/mock"
)

func newFallbackManager(t *testing.T) *Manager {
	t.Helper()

	p, err := parsing.New(nil, parsing.Config{EnableFallback: true})
	if err != nil {
		t.Fatalf("parsing.New: %v", err)
	}
	e, err := embedding.New(nil, embedding.Config{Dimension: 32, EnableFallback: true})
	if err != nil {
		t.Fatalf("embedding.New: %v", err)
	}
	m, err := New(p, e, MonitorConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestProcessFull(t *testing.T) {
	m := newFallbackManager(t)

	res, err := m.ProcessFull(context.Background(), "Hello world. Bye.")
	if err != nil {
		t.Fatalf("ProcessFull: %v", err)
	}
	if res.Parsed == nil || len(res.Parsed.Tokens) != 3 {
		t.Errorf("parsed = %+v", res.Parsed)
	}
	if len(res.Embedding) != 32 {
		t.Errorf("embedding len = %d, want 32", len(res.Embedding))
	}
	if res.EmbeddingDimension != 32 {
		t.Errorf("dimension = %d, want 32", res.EmbeddingDimension)
	}
}

func TestSemanticSimilarity(t *testing.T) {
	m := newFallbackManager(t)
	ctx := context.Background()

	same, err := m.SemanticSimilarity(ctx, "hello world", "hello world")
	if err != nil {
		t.Fatalf("SemanticSimilarity: %v", err)
	}
	if math.Abs(same-1) > 1e-6 {
		t.Errorf("similarity(x,x) = %v, want ~1", same)
	}

	// Empty inputs embed to zero vectors: similarity is 0, never an error.
	zero, err := m.SemanticSimilarity(ctx, "", "hello")
	if err != nil {
		t.Fatalf("SemanticSimilarity: %v", err)
	}
	if zero != 0 {
		t.Errorf("similarity with zero vector = %v, want 0", zero)
	}
}

func TestReady_Disjunction(t *testing.T) {
	// Both services in fallback mode: ready.
	m := newFallbackManager(t)
	if !m.Ready() {
		t.Error("Ready = false with both services in fallback")
	}

	// Half-fallback: parsing healthy, embedding fallback — not ready.
	p, _ := parsing.New(&parsemock.Provider{Model: "en_core_web_sm"}, parsing.Config{EnableFallback: true})
	e, _ := embedding.New(nil, embedding.Config{Dimension: 8, EnableFallback: true})
	half, err := New(p, e, MonitorConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if half.Ready() {
		t.Error("Ready = true in half-fallback state")
	}

	// Both healthy: ready.
	e2, _ := embedding.New(&encmock.Provider{
		Dims:     8,
		Encoding: &encoder.Encoding{TokenStates: [][]float32{{1, 2, 3, 4, 5, 6, 7, 8}}},
	}, embedding.Config{Dimension: 8, EnableFallback: true})
	healthy, err := New(p, e2, MonitorConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !healthy.Ready() {
		t.Error("Ready = false with both services healthy")
	}
}

func TestEntitiesWithEmbeddings(t *testing.T) {
	p, _ := parsing.New(&parsemock.Provider{
		Model: "en_core_web_sm",
		Annotations: &parser.Annotations{
			Tokens: []string{"Alice", "met", "Bob"},
			Lemmas: []string{"alice", "meet", "bob"},
			Entities: []parser.Entity{
				{Text: "Alice", Label: "PERSON", Start: 0, End: 5},
				{Text: "Bob", Label: "PERSON", Start: 10, End: 13},
			},
			Language: "en",
		},
	}, parsing.Config{EnableFallback: true})
	e, _ := embedding.New(nil, embedding.Config{Dimension: 16, EnableFallback: true})
	m, err := New(p, e, MonitorConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pairs, err := m.EntitiesWithEmbeddings(context.Background(), "Alice met Bob")
	if err != nil {
		t.Fatalf("EntitiesWithEmbeddings: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("len = %d, want 2", len(pairs))
	}
	if pairs[0].Entity.Text != "Alice" || pairs[1].Entity.Text != "Bob" {
		t.Errorf("entities out of order: %+v", pairs)
	}
	for _, pair := range pairs {
		if len(pair.Vector) != 16 {
			t.Errorf("vector len for %q = %d, want 16", pair.Entity.Text, len(pair.Vector))
		}
		if pair.Confidence <= 0 {
			t.Errorf("confidence for %q = %v", pair.Entity.Text, pair.Confidence)
		}
	}
}

func TestReload_Cascades(t *testing.T) {
	pp := &parsemock.Provider{Model: "en_core_web_sm"}
	ep := &encmock.Provider{Dims: 8, Model: "distilbert-base-uncased"}

	p, _ := parsing.New(pp, parsing.Config{Model: "en_core_web_sm", EnableFallback: true})
	e, _ := embedding.New(ep, embedding.Config{Model: "distilbert-base-uncased", Dimension: 8, EnableFallback: true})
	m, err := New(p, e, MonitorConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.Reload(context.Background(), "en_core_web_lg", "bert-base-uncased"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(pp.LoadCalls) != 1 || len(ep.LoadCalls) != 1 {
		t.Errorf("load calls = %d/%d, want 1/1", len(pp.LoadCalls), len(ep.LoadCalls))
	}

	// A failing parser reload still attempts the encoder reload.
	pp.LoadErr = errors.New("no such model")
	err = m.Reload(context.Background(), "bogus", "bert-base-uncased")
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ep.LoadCalls) != 2 {
		t.Errorf("encoder reload skipped after parser failure: %d calls", len(ep.LoadCalls))
	}
}

func TestMemoryIndexOps_WithoutIndex(t *testing.T) {
	m := newFallbackManager(t)
	ctx := context.Background()

	if err := m.IndexText(ctx, "id", "text"); !errors.Is(err, ErrNoMemoryIndex) {
		t.Errorf("IndexText err = %v, want ErrNoMemoryIndex", err)
	}
	if _, err := m.SearchSimilar(ctx, "query", 5); !errors.Is(err, ErrNoMemoryIndex) {
		t.Errorf("SearchSimilar err = %v, want ErrNoMemoryIndex", err)
	}
}

func TestHealthSummary(t *testing.T) {
	m := newFallbackManager(t)

	sum := m.HealthSummary()
	if sum.Status != "degraded" {
		t.Errorf("Status = %q, want degraded (both fallback)", sum.Status)
	}
	if !sum.Ready {
		t.Error("Ready = false")
	}
	if sum.AlertCount == 0 {
		t.Error("expected fallback alerts")
	}
	if sum.MonitorRunning {
		t.Error("monitor should not be running before Start")
	}
}
