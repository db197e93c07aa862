package parsing

import (
	"testing"

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

func backendResult() *Result {
	return &Result{
		Tokens:  []string{"Alice", "visited", "Berlin", "."},
		Lemmas:  []string{"Alice", "visit", "Berlin", "."},
		POSTags: []string{"PROPN", "VERB", "PROPN", "PUNCT"},
		Entities: []parser.Entity{
			{Text: "Alice", Label: "PERSON", Start: 0, End: 5},
			{Text: "Berlin", Label: "GPE", Start: 14, End: 20},
		},
		NounPhrases: []string{"Alice", "Berlin"},
		Sentences:   []string{"Alice visited Berlin."},
		Language:    "en",
	}
}

func TestExtractEntities(t *testing.T) {
	scored := ExtractEntities(backendResult())
	if len(scored) != 2 {
		t.Fatalf("len = %d, want 2", len(scored))
	}
	for _, e := range scored {
		if e.Confidence < 0.5 || e.Confidence > 1 {
			t.Errorf("confidence for %q = %v, out of range", e.Text, e.Confidence)
		}
	}

	// Fallback results have no entities, so the derived op yields none.
	if got := ExtractEntities(fallbackParse("hello world")); len(got) != 0 {
		t.Errorf("fallback entities = %v, want empty", got)
	}
}

func TestKeyPhrases(t *testing.T) {
	phrases := KeyPhrases(backendResult(), 10)
	if len(phrases) != 2 {
		t.Fatalf("phrases = %v, want 2 deduplicated entries", phrases)
	}

	if got := KeyPhrases(backendResult(), 1); len(got) != 1 {
		t.Errorf("limited phrases = %v, want 1", got)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText(backendResult()); got != "alice visit berlin" {
		t.Errorf("NormalizeText = %q, want %q", got, "alice visit berlin")
	}

	// Fallback path has no POS tags; punctuation stays attached to tokens.
	fb := fallbackParse("Hello World")
	if got := NormalizeText(fb); got != "hello world" {
		t.Errorf("NormalizeText(fallback) = %q, want %q", got, "hello world")
	}
}

func TestAnalyzeStructure(t *testing.T) {
	s := AnalyzeStructure(backendResult())
	if s.TokenCount != 4 || s.SentenceCount != 1 || s.EntityCount != 2 {
		t.Errorf("structure = %+v", s)
	}
	if s.AvgSentenceLength != 4 {
		t.Errorf("AvgSentenceLength = %v, want 4", s.AvgSentenceLength)
	}
}

func TestRerankCandidates(t *testing.T) {
	query := fallbackParse("berlin travel plans")

	ranked := RerankCandidates(query, []string{
		"weather in tokyo",
		"travel plans for berlin",
		"grocery list",
	})
	if len(ranked) != 3 {
		t.Fatalf("len = %d, want 3", len(ranked))
	}
	if ranked[0].Text != "travel plans for berlin" {
		t.Errorf("top candidate = %q, want the berlin travel one (scores: %+v)", ranked[0].Text, ranked)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("ranking not descending at %d: %+v", i, ranked)
		}
	}
}

func TestRerankCandidates_Empty(t *testing.T) {
	if got := RerankCandidates(fallbackParse("query"), nil); len(got) != 0 {
		t.Errorf("reranked = %v, want empty", got)
	}
}
