// Package mock provides a test double for the parser.Provider interface.
//
// Configure canned annotations or errors via the exported fields and inspect
// the recorded calls afterwards:
//
//	p := &mock.Provider{Annotations: &parser.Annotations{Tokens: []string{"hi"}}}
//	ann, _ := p.Parse(ctx, "hi")
package mock

import (
	"context"
	"sync"

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// Provider is a mock implementation of parser.Provider.
type Provider struct {
	mu sync.Mutex

	// Annotations is returned by Parse when ParseFunc is nil. If both are
	// nil, Parse returns empty annotations.
	Annotations *parser.Annotations

	// ParseFunc, if set, is called by Parse instead of returning Annotations.
	ParseFunc func(ctx context.Context, text string) (*parser.Annotations, error)

	// ParseErr, if non-nil, is returned by Parse (takes precedence over
	// Annotations but not over ParseFunc).
	ParseErr error

	// LoadErr, if non-nil, is returned by LoadModel. On success LoadModel
	// updates Model.
	LoadErr error

	// DownloadErr, if non-nil, is returned by DownloadModel.
	DownloadErr error

	// Model is returned by ModelID.
	Model string

	// ParseCalls records the text of every Parse call in order.
	ParseCalls []string

	// LoadCalls records the model of every LoadModel call in order.
	LoadCalls []string

	// DownloadCalls records the model of every DownloadModel call in order.
	DownloadCalls []string
}

// Parse records the call and returns the configured result.
func (p *Provider) Parse(ctx context.Context, text string) (*parser.Annotations, error) {
	p.mu.Lock()
	p.ParseCalls = append(p.ParseCalls, text)
	fn := p.ParseFunc
	ann, err := p.Annotations, p.ParseErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if ann != nil {
		return ann, nil
	}
	return &parser.Annotations{}, nil
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

// DownloadModel records the call and returns DownloadErr.
func (p *Provider) DownloadModel(_ context.Context, model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DownloadCalls = append(p.DownloadCalls, model)
	return p.DownloadErr
}

// ModelID returns the configured model name.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Model
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ParseCalls = nil
	p.LoadCalls = nil
	p.DownloadCalls = nil
}
