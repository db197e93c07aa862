// Package parser defines the Provider interface for linguistic annotation
// backends.
//
// A parser provider wraps an NLP pipeline that maps raw text to token-level
// annotations: tokens, lemmas, part-of-speech tags, named entities, noun
// phrases, sentence boundaries, and dependency arcs. The canonical backend is
// a spaCy sidecar process (see the spacyd subpackage), but any service that
// can produce [Annotations] qualifies.
//
// Implementations must be safe for concurrent use.
package parser

import "context"

// Entity is a named entity span found in the input text. Start and End are
// rune offsets into the original text, with End exclusive.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Dependency is one arc of the dependency parse: the token itself (text,
// lemma, coarse POS, fine-grained tag), its relation to the syntactic head,
// the head's text and POS, and the surface forms of the token's direct
// dependents.
type Dependency struct {
	Text     string   `json:"text"`
	Lemma    string   `json:"lemma"`
	POS      string   `json:"pos"`
	Tag      string   `json:"tag"`
	Relation string   `json:"relation"`
	HeadText string   `json:"head_text"`
	HeadPOS  string   `json:"head_pos"`
	Children []string `json:"children"`
}

// Annotations is the full linguistic analysis of one input text. Tokens,
// Lemmas and POSTags are parallel slices: the i-th element of each describes
// the i-th token.
type Annotations struct {
	Tokens       []string     `json:"tokens"`
	Lemmas       []string     `json:"lemmas"`
	POSTags      []string     `json:"pos_tags"`
	Entities     []Entity     `json:"entities"`
	NounPhrases  []string     `json:"noun_phrases"`
	Sentences    []string     `json:"sentences"`
	Dependencies []Dependency `json:"dependencies"`

	// Language is the two-letter language code the pipeline detected or was
	// configured for, e.g. "en".
	Language string `json:"language"`
}

// Provider is the abstraction over any linguistic annotation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Parse annotates a single text. Returns an error if the backend call
	// fails or ctx is cancelled. Empty input is the caller's concern —
	// providers may return empty annotations or an error for it.
	Parse(ctx context.Context, text string) (*Annotations, error)

	// LoadModel switches the backend to the named model. On error the
	// previously loaded model must remain active. Used by the reload path.
	LoadModel(ctx context.Context, model string) error

	// DownloadModel fetches the named model's data so a subsequent LoadModel
	// can succeed. Backends with no download step return nil.
	DownloadModel(ctx context.Context, model string) error

	// ModelID returns the identifier of the currently loaded model, e.g.
	// "en_core_web_sm".
	ModelID() string
}
