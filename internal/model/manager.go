package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/config/source"
	"github.com/ekisa-team/echocode-voice/internal/envvar"
	"github.com/ekisa-team/echocode-voice/internal/xfs"
)

// DownloaderFunc returns the downloader for a source type.
type DownloaderFunc func(ctx context.Context, t config.SourceType) (source.Downloader, error)

// Manager resolves configured models to local paths and tracks them in a registry.
type Manager struct {
	registry   *Registry
	downloader DownloaderFunc
	mu         sync.RWMutex
}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{
		registry:   NewRegistry(),
		downloader: source.GetDownloader,
	}
}

// NewManagerWithDownloader creates a Manager that fetches models through fn.
func NewManagerWithDownloader(fn DownloaderFunc) *Manager {
	m := NewManager()
	m.downloader = fn
	return m
}

// Registry returns the model registry.
func (m *Manager) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry
}

// LoadModelsFromConfig resolves every model assigned to a service and
// replaces the registry contents. A model that fails to resolve stays in the
// registry as failed and its error is part of the returned error.
func (m *Manager) LoadModelsFromConfig(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	registry := NewRegistry()

	modelsPath := ResolveModelsPath(cfg)
	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		return fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	var errs []error
	for _, modelID := range cfg.AssignedModels() {
		modelConfig, ok := cfg.Models[modelID]
		if !ok {
			slog.Warn("Model not found in config", "model_id", modelID)
			continue
		}

		instance, err := m.resolve(ctx, &modelConfig, modelID, modelsPath)
		if err != nil {
			instance = NewModelInstance(&modelConfig, modelID, "")
			instance.SetError(err)
			errs = append(errs, err)
			slog.Error("Failed to load model", "model_id", modelID, "error", err)
		} else {
			slog.Info("Model loaded into registry", "model_id", modelID, "path", instance.Path)
		}

		registry.Set(instance)
	}

	m.registry = registry
	return errors.Join(errs...)
}

// LoadModel resolves a single configured model without touching the registry.
// CLI mode uses it to avoid downloading models it does not need.
func (m *Manager) LoadModel(ctx context.Context, cfg *config.Config, modelID string) (*Instance, error) {
	modelConfig, ok := cfg.Models[modelID]
	if !ok {
		return nil, &NotFoundError{ID: modelID}
	}

	modelsPath := ResolveModelsPath(cfg)
	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		return nil, fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	return m.resolve(ctx, &modelConfig, modelID, modelsPath)
}

func (m *Manager) resolve(ctx context.Context, modelConfig *config.ModelConfig, modelID, modelsPath string) (*Instance, error) {
	modelSource, err := modelConfig.GetSource()
	if errors.Is(err, config.ErrNoSource) && modelConfig.Name != "" {
		// The backend resolves the name itself (library model or remote API).
		return NewModelInstance(modelConfig, modelID, modelConfig.Name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model source for %s: %w", modelID, err)
	}

	downloader, err := m.downloader(ctx, modelSource.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to get downloader for %s: %w", modelID, err)
	}

	path, _, err := downloader.Download(ctx, modelConfig, modelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download model %s into %s: %w", modelID, modelsPath, err)
	}

	return NewModelInstance(modelConfig, modelID, path), nil
}

// ResolveModelsPath returns the path to the models directory.
// Precedence:
// 1. ECHOCODE_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func ResolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.EchocodeModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
