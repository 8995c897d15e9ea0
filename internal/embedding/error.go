package embedding

import "errors"

// Error definitions for the embedding package.
var (
	ErrDimensionMismatch = errors.New("embedding: vector dimensions differ")
	ErrEmptyVector       = errors.New("embedding: empty vector")
	ErrVectorCount       = errors.New("embedding: provider returned wrong number of vectors")
	ErrClosed            = errors.New("embedding: provider closed")
	ErrNonFinite         = errors.New("embedding: vector is not finite")
)
