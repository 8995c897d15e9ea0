package intent

import "errors"

// Error definitions for the intent package.
var (
	ErrMissingID    = errors.New("intent: command has no id")
	ErrInvalidInput = errors.New("intent: invalid input")
	ErrNoProvider   = errors.New("intent: no embedding provider")
	ErrBadThreshold = errors.New("intent: threshold must be within [-1, 1]")
)
