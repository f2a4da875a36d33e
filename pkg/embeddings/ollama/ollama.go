// Package ollama embeds text through a local Ollama server's /api/embed endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/polar/pkg/embeddings"
)

const (
	DefaultEmbeddingModel = "embeddinggemma"
	DefaultBaseURL        = "http://localhost:11434"
	DefaultTimeout        = 120 * time.Second

	// maxErrorBody caps how much of a failed response ends up in the error.
	maxErrorBody = 4 << 10
)

// EmbedderConfig configures an Embedder. Zero values fall back to the
// package defaults.
type EmbedderConfig struct {
	BaseURL string
	Model   string

	// Dimensions, when non-zero, rejects vectors of any other length.
	Dimensions int

	// KeepAlive is passed through to Ollama, e.g. "10m" to keep the model
	// loaded between ingestion batches.
	KeepAlive string

	Timeout time.Duration
}

// Embedder is an embeddings.Embedder backed by Ollama.
type Embedder struct {
	endpoint string
	cfg      EmbedderConfig
	client   *http.Client
}

var _ embeddings.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Model     string `json:"model"`
	Input     string `json:"input"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("ollama: negative dimensions %d", cfg.Dimensions)
	}

	return &Embedder{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/api/embed",
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Embed returns the vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: text, KeepAlive: e.cfg.KeepAlive})
	if err != nil {
		return nil, failure("marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, failure("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, failure("sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, failure("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, failure("decoding response: %v", err)
	}
	if len(decoded.Embeddings) != 1 {
		return nil, failure("ollama returned %d embeddings for one input", len(decoded.Embeddings))
	}

	v := decoded.Embeddings[0]
	if e.cfg.Dimensions != 0 && len(v) != e.cfg.Dimensions {
		return nil, failure("model %s returned %d dimensions, expected %d", e.cfg.Model, len(v), e.cfg.Dimensions)
	}
	return v, nil
}

// Close is a no-op; the HTTP client holds no per-embedder resources.
func (e *Embedder) Close() error { return nil }

func failure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", embeddings.ErrEmbedding, fmt.Sprintf(format, args...))
}
