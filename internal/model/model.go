package model

import (
	"sync"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/config"
)

// ModelStatus is the current loading status of a model.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the model is not loaded.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoading indicates that the model is being loaded.
	ModelStatusLoading ModelStatus = "loading"

	// ModelStatusLoaded indicates that the model is loaded.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the model failed to load.
	ModelStatusFailed ModelStatus = "failed"
)

// Instance represents a model known to the registry.
type Instance struct {
	Config   *config.ModelConfig
	LoadedAt *time.Time
	ID       string
	// Path is the local model directory, or the library model name for
	// models configured without a source.
	Path   string
	status ModelStatus
	err    string
	mu     sync.RWMutex
}

// Info is a point-in-time copy of an instance, suitable for listing.
type Info struct {
	LoadedAt *time.Time       `json:"loaded_at,omitempty"`
	ID       string           `json:"id"`
	Type     config.ModelType `json:"type"`
	Backend  string           `json:"backend"`
	Status   ModelStatus      `json:"status"`
	Error    string           `json:"error,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
	Order    int              `json:"order"`
}

// NewModelInstance creates a new model instance.
func NewModelInstance(cfg *config.ModelConfig, id, path string) *Instance {
	return &Instance{
		ID:     id,
		Path:   path,
		Config: cfg,
		status: ModelStatusUnloaded,
	}
}

// SetStatus sets the status of the model instance.
func (mi *Instance) SetStatus(status ModelStatus) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.status = status
	switch status {
	case ModelStatusLoaded:
		now := time.Now()
		mi.LoadedAt = &now
		mi.err = ""
	case ModelStatusUnloaded:
		mi.LoadedAt = nil
	}
}

// SetError marks the instance failed.
func (mi *Instance) SetError(err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.status = ModelStatusFailed
	mi.err = err.Error()
}

// Status returns the current status.
func (mi *Instance) Status() ModelStatus {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.status
}

// Info returns a copy of the instance state.
func (mi *Instance) Info() Info {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	info := Info{
		ID:       mi.ID,
		Status:   mi.status,
		Error:    mi.err,
		LoadedAt: mi.LoadedAt,
	}
	if mi.Config != nil {
		info.Type = mi.Config.Type
		info.Backend = mi.Config.Backend
		info.Tags = mi.Config.Tags
		info.Order = mi.Config.Order
	}

	return info
}
