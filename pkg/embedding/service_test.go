package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
	"github.com/karen-ai/nlpcore/pkg/provider/encoder/mock"
)

func newTestService(t *testing.T, p encoder.Provider, cfg Config) *Service {
	t.Helper()
	s, err := New(p, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestEmbed_ForcedFallback(t *testing.T) {
	s := newTestService(t, nil, Config{Dimension: 768, EnableFallback: true})

	first, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(first) != 768 {
		t.Fatalf("len = %d, want 768", len(first))
	}

	// Second call: deterministic and served from cache.
	second, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("repeat call differs at %d", i)
		}
	}

	h := s.Health()
	if h.CacheHits != 1 || h.CacheMisses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", h.CacheHits, h.CacheMisses)
	}
	if !h.FallbackActive {
		t.Error("FallbackActive = false in forced fallback mode")
	}
	if h.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", h.Status)
	}
}

func TestEmbed_EmptyInputIsZeroVector(t *testing.T) {
	s := newTestService(t, nil, Config{Dimension: 8, EnableFallback: true})

	vecs, err := s.EmbedAll(context.Background(), []string{"", "hello"})
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	for i, x := range vecs[0] {
		if x != 0 {
			t.Fatalf("vecs[0][%d] = %v, want 0", i, x)
		}
	}

	single, _ := s.Embed(context.Background(), "hello")
	for i := range single {
		if vecs[1][i] != single[i] {
			t.Fatalf("batch result differs from single at %d", i)
		}
	}

	// Empty input bypasses cache and backend entirely.
	h := s.Health()
	if h.CacheMisses != 1 {
		t.Errorf("misses = %d, want 1 (empty input must not count)", h.CacheMisses)
	}
}

func TestEmbed_EncoderPathNormalizes(t *testing.T) {
	p := &mock.Provider{
		Dims:     4,
		Encoding: &encoder.Encoding{TokenStates: [][]float32{{2, 0, 0, 0}, {4, 0, 0, 0}}},
	}
	s := newTestService(t, p, Config{Dimension: 4, EnableFallback: true})

	v, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("norm^2 = %v, want 1", norm)
	}
	if s.FallbackActive() {
		t.Error("FallbackActive = true after successful encoder call")
	}
	if got := s.Health().Status; got != "healthy" {
		t.Errorf("Status = %q, want healthy", got)
	}
}

func TestEmbed_FallbackOnEncoderError(t *testing.T) {
	p := &mock.Provider{Dims: 4, EncodeErr: errors.New("encoder down")}
	s := newTestService(t, p, Config{Dimension: 16, EnableFallback: true})

	v, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v (fallback should have absorbed the failure)", err)
	}
	if len(v) != 16 {
		t.Fatalf("len = %d, want 16", len(v))
	}
	want := fallbackVector("hello", 16)
	for i := range v {
		if v[i] != want[i] {
			t.Fatalf("v[%d] = %v, want fallback value %v", i, v[i], want[i])
		}
	}

	h := s.Health()
	if h.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", h.ErrorCount)
	}
	if h.LastError == "" {
		t.Error("LastError is empty")
	}
	if !h.FallbackActive {
		t.Error("FallbackActive = false after encoder failure")
	}
}

func TestEmbed_ErrorPropagatesWhenFallbackDisabled(t *testing.T) {
	p := &mock.Provider{Dims: 4, EncodeErr: errors.New("encoder down")}
	s := newTestService(t, p, Config{Dimension: 4, EnableFallback: false})

	if _, err := s.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected the encoder error to propagate")
	}
}

func TestNew_RejectsNilProviderWithoutFallback(t *testing.T) {
	if _, err := New(nil, Config{EnableFallback: false}); err == nil {
		t.Fatal("expected construction to fail")
	}
}

func TestBatchEmbed_OrderPreserved(t *testing.T) {
	s := newTestService(t, nil, Config{Dimension: 8, EnableFallback: true, BatchSize: 2})

	texts := []string{"a", "b", "c", "d", "e"}
	batch, err := s.BatchEmbed(context.Background(), texts, 2)
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("len = %d, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		want := fallbackVector(text, 8)
		for j := range want {
			if batch[i][j] != want[j] {
				t.Fatalf("batch[%d] does not match embed(%q)", i, text)
			}
		}
	}
}

func TestReload_ClearsCacheAndExitsFallback(t *testing.T) {
	p := &mock.Provider{
		Dims:     4,
		Encoding: &encoder.Encoding{TokenStates: [][]float32{{1, 2, 3, 4}}},
		Model:    "distilbert-base-uncased",
	}
	s := newTestService(t, p, Config{
		Model:          "distilbert-base-uncased",
		Dimension:      4,
		EnableFallback: true,
	})

	s.Embed(context.Background(), "hello")
	if s.Health().CacheSize != 1 {
		t.Fatalf("cache size = %d, want 1", s.Health().CacheSize)
	}

	if err := s.Reload(context.Background(), "bert-base-uncased"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := s.Model(); got != "bert-base-uncased" {
		t.Errorf("Model = %q, want bert-base-uncased", got)
	}
	if s.Health().CacheSize != 0 {
		t.Error("cache not cleared on reload")
	}
	if s.FallbackActive() {
		t.Error("still in fallback mode after successful reload")
	}
}

func TestReload_FailureKeepsPreviousModel(t *testing.T) {
	p := &mock.Provider{
		Dims:    4,
		LoadErr: errors.New("no such model"),
		Model:   "distilbert-base-uncased",
	}
	s := newTestService(t, p, Config{
		Model:          "distilbert-base-uncased",
		Dimension:      4,
		EnableFallback: true,
	})

	if err := s.Reload(context.Background(), "bogus"); err == nil {
		t.Fatal("expected reload failure")
	}
	if got := s.Model(); got != "distilbert-base-uncased" {
		t.Errorf("Model = %q after failed reload, want distilbert-base-uncased", got)
	}
}

func TestEmbed_ForcedFallbackRecordsProcessingTime(t *testing.T) {
	s := newTestService(t, nil, Config{Dimension: 768, EnableFallback: true})

	if _, err := s.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := s.Health().AvgProcessingTime; got <= 0 {
		t.Errorf("AvgProcessingTime = %v, want > 0 on the forced fallback path", got)
	}
}

func TestEmbedFull_Provenance(t *testing.T) {
	p := &mock.Provider{
		Dims:     4,
		Encoding: &encoder.Encoding{TokenStates: [][]float32{{1, 2, 3, 4}}},
		Model:    "distilbert-base-uncased",
	}
	s := newTestService(t, p, Config{
		Model:          "distilbert-base-uncased",
		Dimension:      4,
		EnableFallback: true,
	})

	embs, err := s.EmbedFull(context.Background(), []string{"hello", ""})
	if err != nil {
		t.Fatalf("EmbedFull: %v", err)
	}
	if embs[0].UsedFallback {
		t.Error("encoder-path vector flagged as fallback")
	}
	if embs[0].Model != "distilbert-base-uncased" {
		t.Errorf("Model = %q, want distilbert-base-uncased", embs[0].Model)
	}
	if embs[1].UsedFallback {
		t.Error("empty-input zero vector flagged as fallback")
	}
}

func TestEmbedFull_MixedBatchKeepsPerVectorFlags(t *testing.T) {
	p := &mock.Provider{
		Dims:      4,
		Encoding:  &encoder.Encoding{TokenStates: [][]float32{{1, 2, 3, 4}}},
		Model:     "distilbert-base-uncased",
		EncodeErr: errors.New("encoder down"),
	}
	s := newTestService(t, p, Config{
		Model:          "distilbert-base-uncased",
		Dimension:      4,
		EnableFallback: true,
	})

	// Cache "stale" while the encoder is down, then recover it.
	if _, err := s.Embed(context.Background(), "stale"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	p.EncodeErr = nil

	embs, err := s.EmbedFull(context.Background(), []string{"stale", "fresh"})
	if err != nil {
		t.Fatalf("EmbedFull: %v", err)
	}
	if !embs[0].UsedFallback || embs[0].Model != "fallback" {
		t.Errorf("cached outage vector = {Model: %q, UsedFallback: %v}, want fallback provenance",
			embs[0].Model, embs[0].UsedFallback)
	}
	if embs[1].UsedFallback || embs[1].Model != "distilbert-base-uncased" {
		t.Errorf("fresh vector = {Model: %q, UsedFallback: %v}, want encoder provenance",
			embs[1].Model, embs[1].UsedFallback)
	}

	// Service-wide flag reflects the last backend interaction, which
	// succeeded.
	if s.FallbackActive() {
		t.Error("FallbackActive = true after successful encoder call")
	}
}

func TestEmbed_CallerMutationDoesNotCorruptCache(t *testing.T) {
	s := newTestService(t, nil, Config{Dimension: 8, EnableFallback: true})

	first, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range first {
		first[i] = 42
	}

	second, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := fallbackVector("hello", 8)
	for i := range second {
		if second[i] != want[i] {
			t.Fatalf("second[%d] = %v, want %v (cache entry was mutated)", i, second[i], want[i])
		}
	}
}

func TestResetMetrics(t *testing.T) {
	s := newTestService(t, nil, Config{Dimension: 8, EnableFallback: true})

	s.Embed(context.Background(), "hello")
	s.Embed(context.Background(), "hello")
	s.ResetMetrics()

	h := s.Health()
	if h.CacheHits != 0 || h.CacheMisses != 0 || h.ErrorCount != 0 {
		t.Errorf("metrics not reset: %+v", h)
	}
}
