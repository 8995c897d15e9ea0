package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ekisa-team/echocode-voice/internal/embedding"
)

// Resolver picks the catalog command closest to an utterance.
type Resolver struct {
	provider  embedding.Provider
	threshold float64
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) { r.threshold = threshold }
}

// WithLogger sets the logger used for catalog warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver backed by provider.
func NewResolver(provider embedding.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		provider:  provider,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Threshold returns the acceptance threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve embeds the utterance and every candidate, then returns the candidate
// with the highest cosine similarity when it strictly exceeds the threshold.
// Score is the best similarity whether or not it was accepted. On ties the
// earliest candidate wins.
func (r *Resolver) Resolve(ctx context.Context, utterance string, candidates []Candidate) (Decision, error) {
	if len(candidates) == 0 {
		return NoMatch(), nil
	}
	if r.provider == nil {
		return Decision{}, ErrNoProvider
	}
	if r.threshold < -1 || r.threshold > 1 {
		return Decision{}, fmt.Errorf("%w: %v", ErrBadThreshold, r.threshold)
	}

	catalog, err := r.dedupe(candidates)
	if err != nil {
		return Decision{}, err
	}

	texts := make([]string, 0, len(catalog)+1)
	texts = append(texts, utterance)
	for _, c := range catalog {
		texts = append(texts, c.Text())
	}

	vectors, err := r.provider.Embed(ctx, texts...)
	if err != nil {
		return Decision{}, fmt.Errorf("intent: failed to embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return Decision{}, fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrVectorCount, len(vectors), len(texts))
	}

	query := vectors[0]
	best, bestIdx := 0.0, -1
	for i, v := range vectors[1:] {
		score, err := embedding.Cosine(query, v)
		if err != nil {
			return Decision{}, fmt.Errorf("intent: command %q: %w", catalog[i].ID, err)
		}
		if bestIdx < 0 || score > best {
			best, bestIdx = score, i
		}
	}

	d := Decision{Command: None, Score: best}
	if best > r.threshold {
		d.Command = catalog[bestIdx].ID
	}

	r.logger.Debug("Intent resolved",
		"command", d.Command,
		"best_candidate", catalog[bestIdx].ID,
		"score", best,
		"threshold", r.threshold,
		"candidates", len(catalog),
	)

	return d, nil
}

// dedupe validates ids and keeps the first occurrence of each.
func (r *Resolver) dedupe(candidates []Candidate) ([]Candidate, error) {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))

	for i, c := range candidates {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: index %d", ErrMissingID, i)
		}
		if _, dup := seen[c.ID]; dup {
			r.logger.Warn("Duplicate command id in catalog, keeping first", "id", c.ID, "index", i)
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}

	return out, nil
}
