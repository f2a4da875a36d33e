package testutils

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/papercomputeco/polar/pkg/embeddings"
)

// FallbackEmbedding is returned for text without a registered vector.
var FallbackEmbedding = []float32{0.1, 0.2, 0.3}

// MockEmbedder maps known texts to fixed vectors. Register vectors in
// Embeddings before handing the embedder to concurrent code.
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn makes Embed fail with embeddings.ErrEmbedding for that text.
	FailOn string

	calls atomic.Int64
}

var _ embeddings.Embedder = (*MockEmbedder)(nil)

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Embeddings: map[string][]float32{}}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("%w: mock refused %q", embeddings.ErrEmbedding, text)
	}
	if v, ok := m.Embeddings[text]; ok {
		return v, nil
	}
	return append([]float32(nil), FallbackEmbedding...), nil
}

// Calls reports how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}

func (m *MockEmbedder) Close() error { return nil }
