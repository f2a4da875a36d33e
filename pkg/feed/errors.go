package feed

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/polar/pkg/bias"
)

var (
	// ErrExhausted is returned when the user has been served every embedded
	// item in the catalog.
	ErrExhausted = errors.New("no unvisited items")

	// ErrNoCandidates is returned when the candidate draw came back empty.
	ErrNoCandidates = bias.ErrNoCandidates

	// ErrInvalidArgument is returned for malformed user ids.
	ErrInvalidArgument = errors.New("invalid argument")
)

// maxUserIDLen bounds user ids in bytes.
const maxUserIDLen = 256

// ValidateUserID rejects empty, oversized, non-UTF-8 or control-character ids.
func ValidateUserID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: user id is empty", ErrInvalidArgument)
	case len(id) > maxUserIDLen:
		return fmt.Errorf("%w: user id exceeds %d bytes", ErrInvalidArgument, maxUserIDLen)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: user id is not valid UTF-8", ErrInvalidArgument)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: user id contains control characters", ErrInvalidArgument)
		}
	}
	return nil
}
