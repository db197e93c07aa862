package parsing

import (
	"time"

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// Result is the full linguistic analysis of one input text. Tokens, Lemmas
// and POSTags are parallel slices where the backend provides them; the
// fallback path leaves POSTags empty.
//
// Results returned by [Service.Parse] are shared with the service's cache:
// callers must treat them as read-only. The derived operations in this
// package all honor that contract.
type Result struct {
	Tokens       []string            `json:"tokens"`
	Lemmas       []string            `json:"lemmas"`
	Entities     []parser.Entity     `json:"entities"`
	POSTags      []string            `json:"pos_tags"`
	NounPhrases  []string            `json:"noun_phrases"`
	Sentences    []string            `json:"sentences"`
	Dependencies []parser.Dependency `json:"dependencies"`

	// Language is the detected language code, or "unknown" on the fallback
	// path.
	Language string `json:"language"`

	// Duration is the wall-clock processing time of the call that produced
	// this result. Cache hits return the original duration unchanged.
	Duration time.Duration `json:"duration"`

	// UsedFallback marks results produced by the heuristic path.
	UsedFallback bool `json:"used_fallback"`
}

// emptyResult is what empty or whitespace-only input yields: structurally
// valid, flagged as fallback, never cached.
func emptyResult() *Result {
	return &Result{
		Tokens:       []string{},
		Lemmas:       []string{},
		Entities:     []parser.Entity{},
		POSTags:      []string{},
		NounPhrases:  []string{},
		Sentences:    []string{},
		Dependencies: []parser.Dependency{},
		Language:     "unknown",
		UsedFallback: true,
	}
}
