package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
	"github.com/ekisa-team/echocode-voice/internal/intent"
	"github.com/ekisa-team/echocode-voice/internal/model"
)

// Intent resolves utterances against command catalogs with the configured
// embedding model.
type Intent struct {
	backends  *backend.Registry
	models    Models
	config    Snapshot
	logger    *slog.Logger
	providers map[string]*embedding.Lazy
	mu        sync.Mutex
}

// NewIntent creates a new Intent service.
func NewIntent(backends *backend.Registry, models Models, config Snapshot) *Intent {
	return &Intent{
		backends:  backends,
		models:    models,
		config:    config,
		logger:    slog.Default(),
		providers: map[string]*embedding.Lazy{},
	}
}

// Resolve returns the decision for p. It never fails: errors are folded into
// the decision. The threshold and timeout are read from the current config.
func (s *Intent) Resolve(ctx context.Context, p intent.Payload) intent.Decision {
	if len(p.Commands) == 0 {
		return intent.NoMatch()
	}

	d, err := s.resolve(ctx, p)
	if errors.Is(err, embedding.ErrClosed) {
		// A reload closed the provider this request picked up.
		s.logger.Debug("Embedding provider was reset, retrying")
		d, err = s.resolve(ctx, p)
	}
	if err != nil {
		s.logger.Warn("Intent resolution failed", "error", err)
		return intent.Failed(err)
	}

	s.logger.Debug("Intent resolved", "command", d.Command, "score", d.Score)
	return d
}

func (s *Intent) resolve(ctx context.Context, p intent.Payload) (intent.Decision, error) {
	provider, err := s.Provider()
	if err != nil {
		return intent.Decision{}, err
	}

	cfg := s.config()
	if timeout := cfg.Services.Intent.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := intent.NewResolver(provider,
		intent.WithThreshold(cfg.Services.Intent.Threshold),
		intent.WithLogger(s.logger),
	)

	return res.Resolve(ctx, p.Transcript, p.Commands)
}

// Provider returns the lazily built provider for the model assigned to the
// intent service. Providers are shared across requests until Reset.
func (s *Intent) Provider() (embedding.Provider, error) {
	cfg := s.config()

	modelID, err := cfg.IntentModelID()
	if err != nil {
		return nil, fmt.Errorf("intent service: %w", err)
	}

	mi, err := s.models.Registry().MustGet(modelID)
	if err != nil {
		return nil, err
	}

	if info := mi.Info(); info.Status == model.ModelStatusFailed {
		return nil, fmt.Errorf("%w: %s: %s", ErrModelUnavailable, modelID, info.Error)
	}

	key := modelID + "\x00" + mi.Path + "\x00" + mi.Config.Backend

	s.mu.Lock()
	defer s.mu.Unlock()

	if lazy, ok := s.providers[key]; ok {
		return lazy, nil
	}

	cacheSize := cfg.Services.Intent.CacheSize
	lazy := embedding.NewLazy(func() (embedding.Provider, error) {
		return s.build(mi, cacheSize)
	})
	s.providers[key] = lazy

	return lazy, nil
}

func (s *Intent) build(mi *model.Instance, cacheSize int) (embedding.Provider, error) {
	mi.SetStatus(model.ModelStatusLoading)

	b, err := s.backends.MustGet(backend.BackendProvider(mi.Config.Backend))
	if err != nil {
		mi.SetError(err)
		return nil, err
	}

	path, err := backend.ResolveModelPath(b, mi.Path)
	if err != nil {
		mi.SetError(err)
		return nil, err
	}

	var p embedding.Provider = embedding.NewBackendProvider(b, path, mi.Config.Parameters)
	if cacheSize > 0 {
		cached, err := embedding.NewCached(p, cacheSize)
		if err != nil {
			mi.SetError(err)
			return nil, err
		}
		p = cached
	}

	mi.SetStatus(model.ModelStatusLoaded)
	s.logger.Info("Embedding provider ready", "model_id", mi.ID, "backend", mi.Config.Backend, "path", path)

	return p, nil
}

// Reset drops every provider. The next request builds a fresh one from the
// current registry. Closing waits for embeddings already running on the old
// providers, and requests that picked one up just before the reset retry on
// a fresh one.
func (s *Intent) Reset() error {
	s.mu.Lock()
	providers := s.providers
	s.providers = map[string]*embedding.Lazy{}
	s.mu.Unlock()

	var errs []error
	for _, lazy := range providers {
		if err := lazy.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close releases every provider.
func (s *Intent) Close() error {
	return s.Reset()
}
