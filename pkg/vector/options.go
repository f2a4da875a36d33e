package vector

// SearchOptions holds per-search settings.
type SearchOptions struct {
	exclude map[string]struct{}
}

// SearchOption configures a Search call.
type SearchOption func(*SearchOptions)

// Exclude drops the given ids from the results.
func Exclude(ids ...string) SearchOption {
	return func(o *SearchOptions) {
		if o.exclude == nil {
			o.exclude = make(map[string]struct{}, len(ids))
		}
		for _, id := range ids {
			o.exclude[id] = struct{}{}
		}
	}
}

// ApplySearchOptions folds opts into a SearchOptions value.
func ApplySearchOptions(opts ...SearchOption) SearchOptions {
	var o SearchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Excluded reports whether id must be left out of the results.
func (o SearchOptions) Excluded(id string) bool {
	_, ok := o.exclude[id]
	return ok
}

// ExcludedCount is the number of excluded ids.
func (o SearchOptions) ExcludedCount() int {
	return len(o.exclude)
}

// ExcludedIDs returns the excluded ids in no particular order.
func (o SearchOptions) ExcludedIDs() []string {
	ids := make([]string, 0, len(o.exclude))
	for id := range o.exclude {
		ids = append(ids, id)
	}
	return ids
}
