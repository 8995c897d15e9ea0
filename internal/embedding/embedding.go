package embedding

import (
	"context"
	"fmt"
	"math"
)

// Vector is a fixed-length embedding of a piece of text.
type Vector []float64

// Provider maps text to embedding vectors. Implementations must return one
// vector per input text, in input order, and be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, texts ...string) ([]Vector, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, texts ...string) ([]Vector, error)

// Embed implements Provider.
func (f Func) Embed(ctx context.Context, texts ...string) ([]Vector, error) {
	return f(ctx, texts...)
}

// Cosine returns the cosine similarity of a and b, in [-1, 1].
// A zero vector has no direction and scores 0 against anything. Components
// are scaled by each vector's largest magnitude so that very large or very
// small values neither overflow nor underflow.
func Cosine(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrEmptyVector
	}

	sa, err := maxAbs(a)
	if err != nil {
		return 0, err
	}
	sb, err := maxAbs(b)
	if err != nil {
		return 0, err
	}
	if sa == 0 || sb == 0 {
		return 0, nil
	}

	var dot, na, nb float64
	for i := range a {
		x, y := a[i]/sa, b[i]/sb
		dot += x * y
		na += x * x
		nb += y * y
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, ErrNonFinite
	}

	return math.Max(-1, math.Min(1, sim)), nil
}

// maxAbs returns the largest component magnitude of v.
func maxAbs(v Vector) (float64, error) {
	var m float64
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: component %d is %v", ErrNonFinite, i, x)
		}
		m = math.Max(m, math.Abs(x))
	}

	return m, nil
}

// checkCount verifies a provider answered with one vector per text.
func checkCount(texts []string, vectors []Vector) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrVectorCount, len(vectors), len(texts))
	}

	return nil
}
