package config

import "errors"

// Error definitions for the config package.
var (
	ErrNoSource        = errors.New("no source configured for model")
	ErrNoModelAssigned = errors.New("no model assigned to service")
	ErrInvalid         = errors.New("invalid configuration")
)
