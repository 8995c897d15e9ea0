package model

import (
	"errors"
	"fmt"
)

// Error definitions for the model package.
var (
	ErrNotFound = errors.New("model not found in registry")
)

// NotFoundError names the missing model and matches ErrNotFound.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
