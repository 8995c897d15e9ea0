package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached remembers vectors by text so repeated catalog entries are embedded once.
type Cached struct {
	next  Provider
	cache *lru.Cache[string, Vector]
}

// NewCached wraps next with an LRU cache holding up to size vectors.
func NewCached(next Provider, size int) (*Cached, error) {
	cache, err := lru.New[string, Vector](size)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create cache: %w", err)
	}

	return &Cached{next: next, cache: cache}, nil
}

// Embed implements Provider. Only cache misses reach the wrapped provider,
// in their original relative order.
func (c *Cached) Embed(ctx context.Context, texts ...string) ([]Vector, error) {
	out := make([]Vector, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts...)
	if err != nil {
		return nil, err
	}
	if err := checkCount(missTexts, vectors); err != nil {
		return nil, err
	}

	for j, v := range vectors {
		out[missIdx[j]] = v
		c.cache.Add(missTexts[j], v)
	}

	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Close closes the wrapped provider when it supports closing.
func (c *Cached) Close() error {
	c.cache.Purge()
	if closer, ok := c.next.(interface{ Close() error }); ok {
		return closer.Close()
	}

	return nil
}
