package service

import "errors"

// Error definitions for the service package.
var (
	ErrModelPathNotFound = errors.New("model not found")
	ErrAudioNotFound     = errors.New("audio file not found")
	ErrModelUnavailable  = errors.New("model unavailable")
)
