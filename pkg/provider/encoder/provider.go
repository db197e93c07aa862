// Package encoder defines the Provider interface for transformer encoder
// backends.
//
// An encoder provider maps text strings to dense float32 representations.
// Backends come in two shapes: local transformer sidecars (see the bertd
// subpackage) return per-token hidden states so the caller can choose a
// pooling strategy, while hosted APIs (see the openai subpackage) return an
// already-pooled sentence vector. [Encoding] carries either shape; exactly
// one of its fields is populated per provider.
//
// Implementations must be safe for concurrent use.
package encoder

import "context"

// Encoding is the raw output of an encoder for one input text.
type Encoding struct {
	// TokenStates holds one hidden-state vector per input token, in token
	// order. Populated by backends that expose the last hidden layer; nil
	// when the backend pools server-side.
	TokenStates [][]float32

	// Vector is the pooled sentence vector. Populated by backends that pool
	// server-side; nil when TokenStates is set.
	Vector []float32
}

// Provider is the abstraction over any transformer encoder backend.
//
// All encodings produced by a single Provider instance share the
// dimensionality reported by Dimensions. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Encode computes the encoding for a single text. Returns an error if the
	// backend call fails or ctx is cancelled.
	Encode(ctx context.Context, text string) (*Encoding, error)

	// EncodeBatch computes encodings for a slice of texts in one backend
	// call. The returned slice has the same length and order as texts. On
	// error the entire result is nil — partial results are not returned.
	EncodeBatch(ctx context.Context, texts []string) ([]*Encoding, error)

	// Dimensions returns the fixed length of the hidden-state or pooled
	// vectors produced by this provider.
	Dimensions() int

	// ModelID returns the identifier of the currently loaded model, e.g.
	// "distilbert-base-uncased".
	ModelID() string

	// LoadModel switches the backend to the named model. On error the
	// previously loaded model must remain active. Used by the reload path.
	LoadModel(ctx context.Context, model string) error
}
