// Package mock provides a test double for the encoder.Provider interface.
//
// Configure canned encodings or errors via the exported fields and inspect
// the recorded calls afterwards:
//
//	p := &mock.Provider{
//	    Dims: 4,
//	    EncodeFunc: func(_ context.Context, text string) (*encoder.Encoding, error) {
//	        return &encoder.Encoding{TokenStates: [][]float32{{1, 2, 3, 4}}}, nil
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
)

// Provider is a mock implementation of encoder.Provider.
type Provider struct {
	mu sync.Mutex

	// Encoding is returned by Encode (and, repeated, by EncodeBatch) when
	// EncodeFunc is nil. If both are nil, a zero-value Encoding is returned.
	Encoding *encoder.Encoding

	// EncodeFunc, if set, is called per text by both Encode and EncodeBatch.
	EncodeFunc func(ctx context.Context, text string) (*encoder.Encoding, error)

	// EncodeErr, if non-nil, is returned by Encode and EncodeBatch (takes
	// precedence over Encoding but not over EncodeFunc).
	EncodeErr error

	// LoadErr, if non-nil, is returned by LoadModel. On success LoadModel
	// updates Model.
	LoadErr error

	// Dims is returned by Dimensions.
	Dims int

	// Model is returned by ModelID.
	Model string

	// EncodeCalls records the text of every Encode call and every text of
	// every EncodeBatch call, in order.
	EncodeCalls []string

	// LoadCalls records the model of every LoadModel call in order.
	LoadCalls []string
}

// Encode records the call and returns the configured result.
func (p *Provider) Encode(ctx context.Context, text string) (*encoder.Encoding, error) {
	p.mu.Lock()
	p.EncodeCalls = append(p.EncodeCalls, text)
	fn := p.EncodeFunc
	enc, err := p.Encoding, p.EncodeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if enc != nil {
		return enc, nil
	}
	return &encoder.Encoding{}, nil
}

// EncodeBatch records the calls and returns one configured result per text.
func (p *Provider) EncodeBatch(ctx context.Context, texts []string) ([]*encoder.Encoding, error) {
	out := make([]*encoder.Encoding, len(texts))
	for i, t := range texts {
		enc, err := p.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Dims
}

// ModelID returns the configured model name.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Model
}

// LoadModel records the call and returns LoadErr. On success it updates the
// model returned by ModelID.
func (p *Provider) LoadModel(_ context.Context, model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoadCalls = append(p.LoadCalls, model)
	if p.LoadErr != nil {
		return p.LoadErr
	}
	p.Model = model
	return nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EncodeCalls = nil
	p.LoadCalls = nil
}
