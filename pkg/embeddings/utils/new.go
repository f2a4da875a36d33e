// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/polar/pkg/embeddings"
	"github.com/papercomputeco/polar/pkg/embeddings/breaker"
	"github.com/papercomputeco/polar/pkg/embeddings/ollama"
)

const (
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Dimensions   uint
	KeepAlive    string
	Logger       *slog.Logger
}

// NewEmbedder builds the configured embedder behind a circuit breaker. The
// "none" provider returns a nil embedder and no error.
func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case ProviderNone, "":
		return nil, nil
	case ProviderOllama:
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    withScheme(o.TargetURL),
			Model:      o.Model,
			Dimensions: int(o.Dimensions),
			KeepAlive:  o.KeepAlive,
		})
		if err != nil {
			return nil, err
		}
		return breaker.New(e, breaker.Config{Name: "ollama", Logger: o.Logger}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}

func withScheme(target string) string {
	if target == "" || strings.Contains(target, "://") {
		return target
	}
	return "http://" + target
}
