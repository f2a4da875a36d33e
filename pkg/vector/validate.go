package vector

import (
	"cmp"
	"fmt"
	"slices"
)

// ValidateDocuments checks that every document has an id and that all
// embeddings share one non-zero dimension, which must equal want when want
// is non-zero. It returns the shared dimension, or want for an empty set.
func ValidateDocuments(docs []Document, want int) (int, error) {
	dims := want
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return 0, fmt.Errorf("%w: document %d has no id", ErrInvalidArgument, i)
		}
		if _, ok := seen[doc.ID]; ok {
			return 0, fmt.Errorf("%w: duplicate document id %s", ErrInvalidArgument, doc.ID)
		}
		seen[doc.ID] = struct{}{}

		n := len(doc.Embedding)
		if n == 0 {
			return 0, fmt.Errorf("%w: document %s has no embedding", ErrDimensionMismatch, doc.ID)
		}
		if dims == 0 {
			dims = n
		}
		if n != dims {
			return 0, fmt.Errorf("%w: document %s has %d dimensions, expected %d",
				ErrDimensionMismatch, doc.ID, n, dims)
		}
	}
	return dims, nil
}

// ValidateQuery checks search arguments against an index of the given
// dimension. A zero dimension skips the length check.
func ValidateQuery(query []float32, k, dims int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(query) == 0 {
		return fmt.Errorf("%w: empty query vector", ErrInvalidArgument)
	}
	if dims != 0 && len(query) != dims {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), dims)
	}
	return nil
}

// Ranked is a search hit with its insertion position.
type Ranked struct {
	QueryResult
	Seq int64
}

// Rank orders hits by distance then insertion position, drops excluded ids
// and keeps at most k.
func Rank(hits []Ranked, k int, o SearchOptions) []QueryResult {
	slices.SortStableFunc(hits, func(a, b Ranked) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})

	out := make([]QueryResult, 0, min(k, len(hits)))
	for _, h := range hits {
		if len(out) == k {
			break
		}
		if o.Excluded(h.ID) {
			continue
		}
		out = append(out, h.QueryResult)
	}
	return out
}
