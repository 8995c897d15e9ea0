package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrUnknownProvider   = errors.New("unknown backend provider")
	ErrModelFileNotFound = errors.New("no model file found in model directory")
	ErrNotCompiled       = errors.New("backend not compiled into this binary")
)
