// Package bertd provides an encoder provider backed by a bertd sidecar.
//
// bertd is a small HTTP wrapper around a local transformer encoder
// (DistilBERT and friends), run as a sidecar process. Unlike hosted
// embedding APIs it returns the last hidden layer per token, leaving pooling
// to the caller. Two endpoints are used:
//
//	POST /v1/encode {"model": ..., "texts": [...], "max_length": N}
//	POST /v1/load   {"model": ..., "gpu": bool}
//
// Example usage:
//
//	p, err := bertd.New("", "distilbert-base-uncased") // http://localhost:9020
//	if err != nil {
//	    log.Fatal(err)
//	}
//	enc, err := p.Encode(ctx, "Hello, world!")
//	// enc.TokenStates holds one 768-dim vector per token.
package bertd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
)

// DefaultBaseURL is the default base URL for a locally running bertd sidecar.
const DefaultBaseURL = "http://localhost:9020"

// Ensure Provider implements the encoder.Provider interface at compile time.
var _ encoder.Provider = (*Provider)(nil)

// Provider implements encoder.Provider against a bertd sidecar.
//
// Dimension resolution happens in this order:
//  1. Value supplied via WithDimensions option.
//  2. Look-up in the built-in knownDimensions table for recognised models.
//  3. Auto-detection: a single probe encode is issued on the first Dimensions
//     call and the hidden-state width is cached for the Provider's lifetime.
//
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	maxLength  int
	gpu        bool
	httpClient *http.Client

	mu    sync.RWMutex
	model string

	dimensions int
	detectOnce sync.Once
	detectErr  error
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	maxLength  int
	dimensions int
	gpu        bool
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxLength sets the token truncation length sent with every encode
// request. Default: 512.
func WithMaxLength(n int) Option {
	return func(c *config) {
		c.maxLength = n
	}
}

// WithDimensions pre-sets the hidden-state width, bypassing the look-up
// table and the probe request that Dimensions() would otherwise issue for
// unknown models on first call.
func WithDimensions(dims int) Option {
	return func(c *config) {
		c.dimensions = dims
	}
}

// WithGPU asks the sidecar to place the model on a GPU when loading it.
func WithGPU(enabled bool) Option {
	return func(c *config) {
		c.gpu = enabled
	}
}

// New constructs a bertd Provider.
//
// baseURL is the base URL of the sidecar (e.g. "http://localhost:9020"). If
// empty, DefaultBaseURL is used. A trailing slash is stripped automatically.
//
// model is the transformer model name (e.g. "distilbert-base-uncased"). It
// must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("bertd: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{maxLength: 512}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.maxLength <= 0 {
		cfg.maxLength = 512
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	p := &Provider{
		baseURL:    baseURL,
		model:      model,
		maxLength:  cfg.maxLength,
		gpu:        cfg.gpu,
		httpClient: httpClient,
		dimensions: cfg.dimensions,
	}
	if p.dimensions == 0 {
		p.dimensions = knownDimensions(model)
	}
	return p, nil
}

// encodeRequest is the JSON request body for POST /v1/encode.
type encodeRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	MaxLength int      `json:"max_length"`
}

// encodeResponse is the JSON response body for POST /v1/encode.
type encodeResponse struct {
	Model     string `json:"model"`
	Encodings []struct {
		HiddenStates [][]float32 `json:"hidden_states"`
	} `json:"encodings"`
}

// loadRequest is the JSON request body for POST /v1/load.
type loadRequest struct {
	Model string `json:"model"`
	GPU   bool   `json:"gpu"`
}

// Encode implements encoder.Provider by requesting per-token hidden states
// for a single text.
func (p *Provider) Encode(ctx context.Context, text string) (*encoder.Encoding, error) {
	encs, err := p.callEncode(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("bertd: encode: %w", err)
	}
	if len(encs) == 0 {
		return nil, fmt.Errorf("bertd: encode: empty response")
	}
	return encs[0], nil
}

// EncodeBatch implements encoder.Provider by requesting hidden states for a
// slice of texts in one /v1/encode request.
//
// Passing a nil or empty texts slice returns (nil, nil) without issuing any
// network request.
func (p *Provider) EncodeBatch(ctx context.Context, texts []string) ([]*encoder.Encoding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	encs, err := p.callEncode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("bertd: encode batch: %w", err)
	}
	if len(encs) != len(texts) {
		return nil, fmt.Errorf("bertd: encode batch: expected %d encodings, got %d", len(texts), len(encs))
	}
	return encs, nil
}

// Dimensions implements encoder.Provider by returning the hidden-state
// width. Unknown models are probed once against the live sidecar; if the
// probe fails, 0 is returned.
func (p *Provider) Dimensions() int {
	if p.dimensions != 0 {
		return p.dimensions
	}
	p.detectOnce.Do(func() {
		encs, err := p.callEncode(context.Background(), []string{"probe"})
		if err != nil {
			p.detectErr = err
			return
		}
		if len(encs) > 0 && len(encs[0].TokenStates) > 0 {
			p.dimensions = len(encs[0].TokenStates[0])
		}
	})
	return p.dimensions
}

// ModelID implements encoder.Provider by returning the currently active
// model.
func (p *Provider) ModelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// LoadModel implements encoder.Provider by asking the sidecar to load the
// named model. The provider's active model is updated only when the sidecar
// reports success.
func (p *Provider) LoadModel(ctx context.Context, model string) error {
	body, err := json.Marshal(loadRequest{Model: model, GPU: p.gpu})
	if err != nil {
		return fmt.Errorf("bertd: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/load", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bertd: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bertd: load model %q: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bertd: load model %q: unexpected status %d: %s",
			model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

// callEncode sends a POST /v1/encode request and converts the response into
// encoder.Encoding values.
func (p *Provider) callEncode(ctx context.Context, texts []string) ([]*encoder.Encoding, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	body, err := json.Marshal(encodeRequest{
		Model:     model,
		Texts:     texts,
		MaxLength: p.maxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/encode", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Encodings) == 0 {
		return nil, fmt.Errorf("empty encodings in response")
	}

	out := make([]*encoder.Encoding, len(result.Encodings))
	for i, e := range result.Encodings {
		out[i] = &encoder.Encoding{TokenStates: e.HiddenStates}
	}
	return out, nil
}

// knownDimensions returns the well-known hidden-state width for recognised
// transformer model names. Returns 0 for unknown models, which triggers
// auto-detection on the first Dimensions() call.
func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "distilbert"):
		return 768
	case strings.Contains(lower, "bert-base"):
		return 768
	case strings.Contains(lower, "bert-large"):
		return 1024
	case strings.Contains(lower, "minilm"):
		return 384
	default:
		return 0 // will be probed on first Dimensions() call
	}
}
