package storage

import "errors"

var (
	// ErrNotFound matches every NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by Commit when the user's state changed between
	// candidate evaluation and commit, or the item was already visited.
	ErrConflict = errors.New("concurrent modification")
)

// NotFoundError is returned when an item doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "item not found"
	}

	return "item not found: " + e.ID
}

// Is lets errors.Is(err, ErrNotFound) match any NotFoundError.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
