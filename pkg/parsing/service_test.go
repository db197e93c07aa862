package parsing

import (
	"context"
	"errors"
	"testing"

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
	"github.com/karen-ai/nlpcore/pkg/provider/parser/mock"
)

func newTestService(t *testing.T, p parser.Provider, cfg Config) *Service {
	t.Helper()
	s, err := New(p, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestParse_ForcedFallback(t *testing.T) {
	s := newTestService(t, nil, Config{EnableFallback: true})

	res, err := s.Parse(context.Background(), "Hello world. Bye.")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantTokens := []string{"Hello", "world.", "Bye."}
	if len(res.Tokens) != len(wantTokens) {
		t.Fatalf("tokens = %v, want %v", res.Tokens, wantTokens)
	}
	for i := range wantTokens {
		if res.Tokens[i] != wantTokens[i] {
			t.Errorf("tokens[%d] = %q, want %q", i, res.Tokens[i], wantTokens[i])
		}
	}

	wantSentences := []string{"Hello world", "Bye"}
	if len(res.Sentences) != len(wantSentences) {
		t.Fatalf("sentences = %v, want %v", res.Sentences, wantSentences)
	}
	for i := range wantSentences {
		if res.Sentences[i] != wantSentences[i] {
			t.Errorf("sentences[%d] = %q, want %q", i, res.Sentences[i], wantSentences[i])
		}
	}

	if len(res.Entities) != 0 {
		t.Errorf("entities = %v, want empty", res.Entities)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback = false")
	}
	if len(res.Tokens) != len(res.Lemmas) {
		t.Errorf("tokens and lemmas lengths differ: %d vs %d", len(res.Tokens), len(res.Lemmas))
	}

	// Synthetic dependencies: every token after the first heads to token 0.
	if len(res.Dependencies) != 2 {
		t.Fatalf("dependencies = %v, want 2 entries", res.Dependencies)
	}
	for _, d := range res.Dependencies {
		if d.HeadText != "Hello" || d.Relation != "UNKNOWN" {
			t.Errorf("dependency = %+v, want head Hello / relation UNKNOWN", d)
		}
	}
}

func TestParse_SingleTokenFallbackHasNonNilDependencies(t *testing.T) {
	s := newTestService(t, nil, Config{EnableFallback: true})

	res, err := s.Parse(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Dependencies == nil {
		t.Fatal("Dependencies = nil, want empty non-nil slice")
	}
	if len(res.Dependencies) != 0 {
		t.Errorf("dependencies = %v, want none for a single token", res.Dependencies)
	}
}

func TestParse_FallbackDependenciesCarryLemmas(t *testing.T) {
	s := newTestService(t, nil, Config{EnableFallback: true})

	res, err := s.Parse(context.Background(), "Hello World")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Dependencies) != 1 {
		t.Fatalf("dependencies = %v, want 1 entry", res.Dependencies)
	}
	d := res.Dependencies[0]
	if d.Text != "World" || d.Lemma != "world" {
		t.Errorf("dependency = %+v, want text World / lemma world", d)
	}
	if d.POS != "" || d.Tag != "" {
		t.Errorf("dependency = %+v, want no synthesized POS or tag", d)
	}
}

func TestParse_ForcedFallbackRecordsProcessingTime(t *testing.T) {
	s := newTestService(t, nil, Config{EnableFallback: true})

	if _, err := s.Parse(context.Background(), "Hello world"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := s.Health().AvgProcessingTime; got <= 0 {
		t.Errorf("AvgProcessingTime = %v, want > 0 on the forced fallback path", got)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	s := newTestService(t, nil, Config{EnableFallback: true})

	res, err := s.Parse(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback = false for empty input")
	}
	if len(res.Tokens) != 0 || res.Tokens == nil {
		t.Errorf("tokens = %#v, want empty non-nil slice", res.Tokens)
	}

	// Empty input bypasses cache and counters entirely.
	h := s.Health()
	if h.CacheHits != 0 || h.CacheMisses != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/0", h.CacheHits, h.CacheMisses)
	}
}

func TestParse_CacheIdempotence(t *testing.T) {
	p := &mock.Provider{
		Model: "en_core_web_sm",
		Annotations: &parser.Annotations{
			Tokens:   []string{"Hi"},
			Lemmas:   []string{"hi"},
			Language: "en",
		},
	}
	s := newTestService(t, p, Config{Model: "en_core_web_sm", EnableFallback: true})

	first, err := s.Parse(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := s.Parse(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if first != second {
		t.Error("cache hit returned a different result pointer")
	}

	h := s.Health()
	if h.CacheHits != 1 || h.CacheMisses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", h.CacheHits, h.CacheMisses)
	}
	if got := len(p.ParseCalls); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestParse_FallbackOnBackendError(t *testing.T) {
	p := &mock.Provider{ParseErr: errors.New("parser crashed"), Model: "en_core_web_sm"}
	s := newTestService(t, p, Config{EnableFallback: true})

	res, err := s.Parse(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Parse: %v (fallback should have absorbed the failure)", err)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback = false after backend failure")
	}

	h := s.Health()
	if h.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", h.ErrorCount)
	}
	if !h.FallbackActive {
		t.Error("FallbackActive = false")
	}
}

func TestParse_ErrorPropagatesWhenFallbackDisabled(t *testing.T) {
	p := &mock.Provider{ParseErr: errors.New("parser crashed")}
	s := newTestService(t, p, Config{EnableFallback: false})

	if _, err := s.Parse(context.Background(), "Hello"); err == nil {
		t.Fatal("expected the backend error to propagate")
	}
}

func TestReload_AutoDownload(t *testing.T) {
	p := &mock.Provider{LoadErr: errors.New("model not installed"), Model: "en_core_web_sm"}
	s := newTestService(t, p, Config{
		Model:          "en_core_web_sm",
		EnableFallback: true,
		AutoDownload:   true,
	})

	// First load fails, download runs, second load fails again: two load
	// attempts, one download attempt.
	if err := s.Reload(context.Background(), "en_core_web_lg"); err == nil {
		t.Fatal("expected reload failure")
	}
	if got := len(p.LoadCalls); got != 2 {
		t.Errorf("load attempts = %d, want 2", got)
	}
	if got := len(p.DownloadCalls); got != 1 {
		t.Errorf("download attempts = %d, want 1", got)
	}

	// Load succeeds after download: model swaps, cache clears, fallback ends.
	p.LoadErr = nil
	s.Parse(context.Background(), "warm the cache")
	if err := s.Reload(context.Background(), "en_core_web_lg"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := s.Model(); got != "en_core_web_lg" {
		t.Errorf("Model = %q, want en_core_web_lg", got)
	}
	if s.Health().CacheSize != 0 {
		t.Error("cache not cleared on reload")
	}
}

func TestNew_RejectsNilProviderWithoutFallback(t *testing.T) {
	if _, err := New(nil, Config{EnableFallback: false}); err == nil {
		t.Fatal("expected construction to fail")
	}
}
