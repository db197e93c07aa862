package parsing

import (
	"strings"

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// fallbackParse produces a best-effort analysis without any parser backend.
// It never fails: any input degrades gracefully to the structure below.
//
//   - Tokens: whitespace split.
//   - Lemmas: lowercased tokens.
//   - Sentences: split on '.', '!' and '?', trimmed, empties dropped.
//   - Noun phrases: the sentences stand in for real chunks.
//   - Dependencies: every token after the first points at the first token
//     with an "UNKNOWN" relation and its lowercased lemma; no POS or tag
//     information is synthesized.
//   - Entities and POS tags stay empty — there is no heuristic worth
//     trusting for either.
func fallbackParse(text string) *Result {
	tokens := strings.Fields(text)

	lemmas := make([]string, len(tokens))
	for i, tok := range tokens {
		lemmas[i] = strings.ToLower(tok)
	}

	sentences := splitSentences(text)

	nounPhrases := make([]string, len(sentences))
	copy(nounPhrases, sentences)

	deps := []parser.Dependency{}
	for i, tok := range tokens {
		if i == 0 {
			continue
		}
		deps = append(deps, parser.Dependency{
			Text:     tok,
			Lemma:    lemmas[i],
			Relation: "UNKNOWN",
			HeadText: tokens[0],
		})
	}

	return &Result{
		Tokens:       tokens,
		Lemmas:       lemmas,
		Entities:     []parser.Entity{},
		POSTags:      []string{},
		NounPhrases:  nounPhrases,
		Sentences:    sentences,
		Dependencies: deps,
		Language:     "unknown",
		UsedFallback: true,
	}
}

// splitSentences splits on sentence-final punctuation and trims the pieces.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
