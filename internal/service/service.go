// Package service binds configured models to backends for the intent and
// speech-to-text use cases.
package service

import (
	"fmt"
	"maps"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/model"
)

// Models exposes the current model registry. *model.Manager implements it.
type Models interface {
	Registry() *model.Registry
}

// Snapshot returns the configuration in effect for the next request.
type Snapshot func() *config.Config

// StaticModels wraps a fixed registry, as used by the one-shot CLIs.
type StaticModels struct {
	registry *model.Registry
}

// NewStaticModels returns a Models holding instances.
func NewStaticModels(instances ...*model.Instance) *StaticModels {
	r := model.NewRegistry()
	for _, mi := range instances {
		r.Set(mi)
	}

	return &StaticModels{registry: r}
}

// Registry implements Models.
func (s *StaticModels) Registry() *model.Registry {
	return s.registry
}

// StaticSnapshot returns a Snapshot that always yields cfg.
func StaticSnapshot(cfg *config.Config) Snapshot {
	return func() *config.Config { return cfg }
}

// lookup returns the model instance and its backend.
func lookup(backends *backend.Registry, models Models, modelID string) (*model.Instance, backend.Backend, error) {
	mi, err := models.Registry().MustGet(modelID)
	if err != nil {
		return nil, nil, err
	}

	b, err := backends.MustGet(backend.BackendProvider(mi.Config.Backend))
	if err != nil {
		return nil, nil, fmt.Errorf("model %s: %w", modelID, err)
	}

	return mi, b, nil
}

// mergeParams overlays request parameters on the configured model parameters.
func mergeParams(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override)+1)
	maps.Copy(out, base)
	maps.Copy(out, override)

	return out
}
