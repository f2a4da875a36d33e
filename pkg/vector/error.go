package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when vectors of different lengths are
	// mixed in one build or a query does not match the indexed dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidArgument is returned for malformed search parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotBuilt is returned when searching before the first build.
	ErrNotBuilt = errors.New("index not built")

	// ErrNoOtherItems is returned when a similarity lookup finds nothing
	// besides the query item itself.
	ErrNoOtherItems = errors.New("no other items")

	// ErrClosed is returned after the index manager has been closed.
	ErrClosed = errors.New("index manager closed")
)
