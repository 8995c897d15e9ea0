package config

import (
	"errors"
	"fmt"

	"github.com/ekisa-team/echocode-voice/internal/backend"
)

// Validate checks values and cross references that the schema cannot express.
func (c *Config) Validate() error {
	var errs []error

	if t := c.Services.Intent.Threshold; t < -1 || t > 1 {
		errs = append(errs, fmt.Errorf("services.intent.threshold %v must be within [-1, 1]", t))
	}
	if c.Services.Intent.Timeout < 0 {
		errs = append(errs, fmt.Errorf("services.intent.timeout must not be negative"))
	}
	if c.Services.STT.Timeout < 0 {
		errs = append(errs, fmt.Errorf("services.stt.timeout must not be negative"))
	}
	if c.Services.Intent.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("services.intent.cache_size must not be negative"))
	}
	if c.Runtime.Python == "" {
		errs = append(errs, fmt.Errorf("runtime.python must be set"))
	}
	if p := c.Server.HTTPPort; p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", p))
	}
	if p := c.Server.GRPCPort; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", p))
	}

	for id, m := range c.Models {
		if err := m.validate(); err != nil {
			errs = append(errs, fmt.Errorf("models.%s: %w", id, err))
		}
	}

	errs = append(errs, c.checkAssigned("intent", c.Services.Intent.Models, ModelTypeEmbedding)...)
	errs = append(errs, c.checkAssigned("stt", c.Services.STT.Models, ModelTypeSTT)...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

func (c *Config) checkAssigned(service string, ids []string, want ModelType) []error {
	var errs []error
	for _, id := range ids {
		m, ok := c.Models[id]
		if !ok {
			errs = append(errs, fmt.Errorf("services.%s: model %q is not defined", service, id))
			continue
		}
		if m.Type != want {
			errs = append(errs, fmt.Errorf("services.%s: model %q has type %q, want %q", service, id, m.Type, want))
		}
	}

	return errs
}

func (m ModelConfig) validate() error {
	kind, ok := backend.KindOf(backend.BackendProvider(m.Backend))
	if !ok {
		return fmt.Errorf("%w: %q", backend.ErrUnknownProvider, m.Backend)
	}
	if string(kind) != string(m.Type) {
		return fmt.Errorf("backend %q serves %q models, not %q", m.Backend, kind, m.Type)
	}
	if m.Source.HuggingFace != nil && m.Source.Local != nil {
		return fmt.Errorf("only one source may be set")
	}
	if _, err := m.GetSource(); errors.Is(err, ErrNoSource) && m.Name == "" {
		return fmt.Errorf("either a source or a name is required")
	}

	return nil
}
