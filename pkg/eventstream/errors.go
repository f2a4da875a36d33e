package eventstream

import "errors"

// ErrNilServedEvent indicates a nil feed event payload was provided to a publisher.
var ErrNilServedEvent = errors.New("nil served event")
