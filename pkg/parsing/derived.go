package parsing

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// Derived operations are computed purely from an existing [Result] — they
// never call the parser backend a second time, so they inherit the
// fallback/non-fallback duality of the result they are given.

// ScoredEntity is an entity annotated with a confidence estimate.
type ScoredEntity struct {
	parser.Entity
	Confidence float64 `json:"confidence"`
}

// ExtractEntities returns the result's entities with confidence scores.
// Backend entities start at 0.85; multi-word spans get a small boost since
// spurious single-token matches dominate parser false positives. Fallback
// results carry no entities, so the output is empty there by construction.
func ExtractEntities(res *Result) []ScoredEntity {
	out := make([]ScoredEntity, 0, len(res.Entities))
	for _, e := range res.Entities {
		conf := 0.85
		if strings.ContainsRune(e.Text, ' ') {
			conf = 0.95
		}
		if res.UsedFallback {
			conf -= 0.35
		}
		out = append(out, ScoredEntity{Entity: e, Confidence: conf})
	}
	return out
}

// KeyPhrases returns up to max deduplicated key phrases, preferring noun
// phrases and falling back to entity texts. Phrases are lowercased for
// dedup; the original casing of the first occurrence is kept.
func KeyPhrases(res *Result, max int) []string {
	if max <= 0 {
		max = 10
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, max)

	add := func(phrase string) bool {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			return len(out) < max
		}
		key := strings.ToLower(phrase)
		if _, dup := seen[key]; dup {
			return len(out) < max
		}
		seen[key] = struct{}{}
		out = append(out, phrase)
		return len(out) < max
	}

	for _, np := range res.NounPhrases {
		if !add(np) {
			return out
		}
	}
	for _, e := range res.Entities {
		if !add(e.Text) {
			return out
		}
	}
	return out
}

// NormalizeText reduces the result to a canonical lowercase lemma string,
// dropping punctuation tokens when POS information is available. Useful as
// a cache- and comparison-friendly rendering of the input.
func NormalizeText(res *Result) string {
	hasPOS := len(res.POSTags) == len(res.Lemmas)
	parts := make([]string, 0, len(res.Lemmas))
	for i, lemma := range res.Lemmas {
		if hasPOS && res.POSTags[i] == "PUNCT" {
			continue
		}
		if lemma = strings.ToLower(strings.TrimSpace(lemma)); lemma != "" {
			parts = append(parts, lemma)
		}
	}
	return strings.Join(parts, " ")
}

// Structure summarises the shape of a parsed text.
type Structure struct {
	TokenCount        int     `json:"token_count"`
	SentenceCount     int     `json:"sentence_count"`
	EntityCount       int     `json:"entity_count"`
	NounPhraseCount   int     `json:"noun_phrase_count"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	HasDependencies   bool    `json:"has_dependencies"`
}

// AnalyzeStructure computes structural statistics from a result. Average
// sentence length is in tokens, approximated by an even split when sentence
// boundaries and token offsets cannot be aligned.
func AnalyzeStructure(res *Result) Structure {
	s := Structure{
		TokenCount:      len(res.Tokens),
		SentenceCount:   len(res.Sentences),
		EntityCount:     len(res.Entities),
		NounPhraseCount: len(res.NounPhrases),
		HasDependencies: len(res.Dependencies) > 0,
	}
	if s.SentenceCount > 0 {
		s.AvgSentenceLength = float64(s.TokenCount) / float64(s.SentenceCount)
	}
	return s
}

// ScoredCandidate is a re-ranked memory candidate.
type ScoredCandidate struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// RerankCandidates orders candidate texts by relevance to the parsed query,
// best first. The score blends three signals:
//
//   - lemma overlap between query and candidate (Jaccard),
//   - best Jaro-Winkler similarity between the normalized strings,
//   - a phonetic bonus when any query token and candidate token share a
//     Double Metaphone code, which rescues spelling variants.
//
// Ties keep the input order, so reranking is stable.
func RerankCandidates(query *Result, candidates []string) []ScoredCandidate {
	queryNorm := NormalizeText(query)
	queryTokens := strings.Fields(queryNorm)
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		querySet[tok] = struct{}{}
	}
	queryCodes := metaphoneCodes(queryTokens)

	out := make([]ScoredCandidate, len(candidates))
	for i, cand := range candidates {
		candNorm := strings.ToLower(strings.TrimSpace(cand))
		candTokens := strings.Fields(candNorm)

		overlap := jaccard(querySet, candTokens)
		jw := matchr.JaroWinkler(queryNorm, candNorm, false)

		phonetic := 0.0
		for code := range metaphoneCodes(candTokens) {
			if _, ok := queryCodes[code]; ok {
				phonetic = 1.0
				break
			}
		}

		out[i] = ScoredCandidate{
			Text:  cand,
			Score: 0.5*overlap + 0.35*jw + 0.15*phonetic,
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

// jaccard computes token-set Jaccard similarity between the query set and a
// candidate token list.
func jaccard(query map[string]struct{}, candTokens []string) float64 {
	if len(query) == 0 || len(candTokens) == 0 {
		return 0
	}
	candSet := make(map[string]struct{}, len(candTokens))
	for _, tok := range candTokens {
		candSet[tok] = struct{}{}
	}
	var common int
	for tok := range candSet {
		if _, ok := query[tok]; ok {
			common++
		}
	}
	union := len(query) + len(candSet) - common
	return float64(common) / float64(union)
}

// metaphoneCodes collects the Double Metaphone codes of every token.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, tok := range tokens {
		p, s := matchr.DoubleMetaphone(tok)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}
