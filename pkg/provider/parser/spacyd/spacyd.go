// Package spacyd provides a parser provider backed by a spacyd sidecar.
//
// spacyd is a small HTTP wrapper around a spaCy pipeline, run as a local
// sidecar process. It exposes three endpoints:
//
//	POST /v1/parse    {"model": ..., "text": ..., "disable": [...]}
//	POST /v1/load     {"model": ...}
//	POST /v1/download {"model": ...}
//
// Example usage:
//
//	p, err := spacyd.New("", "en_core_web_sm") // connects to http://localhost:9010
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ann, err := p.Parse(ctx, "The quick brown fox jumps over the lazy dog.")
package spacyd

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

	"github.com/karen-ai/nlpcore/pkg/provider/parser"
)

// DefaultBaseURL is the default base URL for a locally running spacyd sidecar.
const DefaultBaseURL = "http://localhost:9010"

// Ensure Provider implements the parser.Provider interface at compile time.
var _ parser.Provider = (*Provider)(nil)

// Provider implements parser.Provider against a spacyd sidecar.
//
// Provider is safe for concurrent use. LoadModel swaps the active model under
// a write lock; in-flight Parse calls finish against whichever model the
// sidecar had when they reached it.
type Provider struct {
	baseURL    string
	disable    []string
	httpClient *http.Client

	mu    sync.RWMutex
	model string
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout time.Duration
	disable []string
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

// WithDisabledComponents names pipeline components the sidecar should skip
// for every parse, e.g. "textcat" or "lemmatizer". Disabling unused
// components is the main lever for parse latency.
func WithDisabledComponents(names ...string) Option {
	return func(c *config) {
		c.disable = append(c.disable, names...)
	}
}

// New constructs a spacyd Provider.
//
// baseURL is the base URL of the sidecar (e.g. "http://localhost:9010"). If
// empty, DefaultBaseURL is used. A trailing slash is stripped automatically.
//
// model is the spaCy model name to parse with (e.g. "en_core_web_sm"). It
// must not be empty. The model is not loaded eagerly — call LoadModel (or let
// the sidecar lazy-load on first parse) to bring it up.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("spacyd: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{
		baseURL:    baseURL,
		model:      model,
		disable:    cfg.disable,
		httpClient: httpClient,
	}, nil
}

// parseRequest is the JSON request body for POST /v1/parse.
type parseRequest struct {
	Model   string   `json:"model"`
	Text    string   `json:"text"`
	Disable []string `json:"disable,omitempty"`
}

// modelRequest is the JSON request body for POST /v1/load and /v1/download.
type modelRequest struct {
	Model string `json:"model"`
}

// Parse implements parser.Provider by sending the text to the sidecar's
// /v1/parse endpoint and decoding the returned annotations.
func (p *Provider) Parse(ctx context.Context, text string) (*parser.Annotations, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	body, err := json.Marshal(parseRequest{
		Model:   model,
		Text:    text,
		Disable: p.disable,
	})
	if err != nil {
		return nil, fmt.Errorf("spacyd: marshal request: %w", err)
	}

	var ann parser.Annotations
	if err := p.post(ctx, "/v1/parse", body, &ann); err != nil {
		return nil, fmt.Errorf("spacyd: parse: %w", err)
	}
	return &ann, nil
}

// LoadModel implements parser.Provider by asking the sidecar to load the
// named model. The provider's active model is updated only when the sidecar
// reports success, so a failed load leaves the previous model serving.
func (p *Provider) LoadModel(ctx context.Context, model string) error {
	body, err := json.Marshal(modelRequest{Model: model})
	if err != nil {
		return fmt.Errorf("spacyd: marshal request: %w", err)
	}
	if err := p.post(ctx, "/v1/load", body, nil); err != nil {
		return fmt.Errorf("spacyd: load model %q: %w", model, err)
	}

	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

// DownloadModel implements parser.Provider by asking the sidecar to download
// the named model's data. Downloads can take minutes for large models; pass a
// ctx with an appropriate deadline.
func (p *Provider) DownloadModel(ctx context.Context, model string) error {
	body, err := json.Marshal(modelRequest{Model: model})
	if err != nil {
		return fmt.Errorf("spacyd: marshal request: %w", err)
	}
	if err := p.post(ctx, "/v1/download", body, nil); err != nil {
		return fmt.Errorf("spacyd: download model %q: %w", model, err)
	}
	return nil
}

// ModelID implements parser.Provider by returning the currently active model.
func (p *Provider) ModelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// post sends a JSON POST to the sidecar and decodes the response into out
// when out is non-nil. Non-200 responses are returned as errors including the
// response body when the sidecar provides one.
func (p *Provider) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(msg) > 0 {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
