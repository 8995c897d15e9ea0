// Package app wires configuration, logging and backends for the binaries.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/backend/fasterwhisper"
	"github.com/ekisa-team/echocode-voice/internal/backend/llama"
	"github.com/ekisa-team/echocode-voice/internal/backend/ollama"
	"github.com/ekisa-team/echocode-voice/internal/backend/openai"
	"github.com/ekisa-team/echocode-voice/internal/backend/pyruntime"
	"github.com/ekisa-team/echocode-voice/internal/backend/sentence"
	"github.com/ekisa-team/echocode-voice/internal/backend/whisper"
	"github.com/ekisa-team/echocode-voice/internal/backend/whispercpp"
	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/env"
	"github.com/ekisa-team/echocode-voice/internal/logger"
	"github.com/ekisa-team/echocode-voice/internal/xfs"
)

// LoadDotEnv loads variables from the given .env files. Missing files are
// skipped and variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if !xfs.Exists(path) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("app: failed to load %s: %w", path, err)
		}
	}

	return nil
}

// NewLogger builds the process logger. level comes from a flag and wins over
// the configured level; fallback applies when neither is set.
func NewLogger(cfg *config.Config, level string, fallback slog.Level) (*slog.Logger, error) {
	name := level
	if name == "" {
		name = cfg.Logging.Level
	}

	lvl := fallback
	if name != "" {
		parsed, err := logger.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}

	return logger.New(env.FromEnv(),
		logger.WithLevel(lvl),
		logger.WithLogToFile(cfg.Logging.ToFile),
		logger.WithLogFile(xfs.ExpandTilde(cfg.Logging.File)),
	), nil
}

// NewRuntime returns the Python runtime described by the config.
func NewRuntime(cfg *config.Config) *pyruntime.Runtime {
	return pyruntime.New(pyruntime.Options{
		Python: cfg.Runtime.Python,
		Dir:    xfs.ExpandTilde(cfg.Runtime.Dir),
		Venv:   cfg.Runtime.Venv,
	})
}

// NewBackends registers every available backend. Backends start nothing until
// their first request. The in-process whisper.cpp backend is only registered
// when the binary was built with it.
func NewBackends(cfg *config.Config, servers *backend.ServerManager) (*backend.Registry, error) {
	rt := NewRuntime(cfg)
	b := cfg.Backends

	backends := []backend.Backend{
		sentence.NewBackend(sentence.Options{
			Runtime: rt,
			Device:  cfg.Runtime.Device,
			Workers: cfg.Runtime.Workers,
		}),
		ollama.NewBackend(b.Ollama.BaseURL),
		openai.NewBackend(os.Getenv(b.OpenAI.APIKeyEnv), b.OpenAI.BaseURL),
		llama.NewBackend(b.LlamaCPP.BinPath, nil),
		fasterwhisper.NewBackend(fasterwhisper.Options{
			Runtime: rt,
			Device:  cfg.Runtime.Device,
		}),
		whisper.NewBackend(b.WhisperCPP.BinPath, b.WhisperCPP.Port, servers),
	}

	wcpp, err := whispercpp.NewBackend(whispercpp.Options{Threads: b.WhisperCPPGo.Threads})
	switch {
	case err == nil:
		backends = append(backends, wcpp)
	case errors.Is(err, backend.ErrNotCompiled):
		slog.Debug("In-process whisper.cpp backend not compiled in")
	default:
		return nil, err
	}

	registry := backend.NewRegistry()
	for _, be := range backends {
		if err := registry.Register(be); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
