// Package openai provides an encoder provider backed by the OpenAI
// embeddings API.
//
// Unlike the bertd sidecar, OpenAI pools server-side: each [encoder.Encoding]
// returned here carries a Vector and no TokenStates, so the caller's pooling
// strategy does not apply to this backend.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
)

// DefaultModel is the default OpenAI embeddings model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// Ensure Provider implements the encoder.Provider interface.
var _ encoder.Provider = (*Provider)(nil)

// Provider implements encoder.Provider using the OpenAI API.
type Provider struct {
	client oai.Client

	mu    sync.RWMutex
	model string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// API-compatible gateways and for tests.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI encoder Provider.
// If model is empty, DefaultModel (text-embedding-3-small) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai encoder: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Encode implements encoder.Provider by requesting a pooled embedding for a
// single text.
func (p *Provider) Encode(ctx context.Context, text string) (*encoder.Encoding, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.ModelID(),
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai encoder: encode: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai encoder: empty response")
	}
	return &encoder.Encoding{Vector: float64ToFloat32(resp.Data[0].Embedding)}, nil
}

// EncodeBatch implements encoder.Provider by requesting pooled embeddings
// for a slice of texts in one API call. Results are reordered by the index
// the API reports, so result[i] always corresponds to texts[i].
func (p *Provider) EncodeBatch(ctx context.Context, texts []string) ([]*encoder.Encoding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.ModelID(),
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai encoder: encode batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai encoder: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([]*encoder.Encoding, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("openai encoder: unexpected index %d", e.Index)
		}
		result[e.Index] = &encoder.Encoding{Vector: float64ToFloat32(e.Embedding)}
	}
	return result, nil
}

// Dimensions implements encoder.Provider.
func (p *Provider) Dimensions() int {
	return modelDimensions(p.ModelID())
}

// ModelID implements encoder.Provider.
func (p *Provider) ModelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// LoadModel implements encoder.Provider. OpenAI models need no load step, so
// this only switches which model name subsequent requests use.
func (p *Provider) LoadModel(_ context.Context, model string) error {
	if model == "" {
		return fmt.Errorf("openai encoder: model must not be empty")
	}
	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

// modelDimensions returns the embedding dimensions for known OpenAI models.
func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536 // sensible default for unknown models
	}
}

// float64ToFloat32 converts a []float64 slice to []float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
