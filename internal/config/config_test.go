package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/echocode-voice/internal/envvar"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.55, cfg.Services.Intent.Threshold)

	id, err := cfg.IntentModelID()
	require.NoError(t, err)
	assert.Equal(t, DefaultIntentModelID, id)
	assert.Equal(t, DefaultIntentModel, cfg.Models[id].Name)
	assert.Equal(t, "sentence-transformers", cfg.Models[id].Backend)

	sttID, err := cfg.STTModelID()
	require.NoError(t, err)
	assert.Equal(t, "faster-whisper", cfg.Models[sttID].Backend)

	assert.Equal(t, []string{DefaultIntentModelID, DefaultSTTModelID}, cfg.AssignedModels())
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
services:
  intent:
    threshold: 0.6
    timeout: 5s
`), "")
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Services.Intent.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Services.Intent.Timeout)
	assert.Equal(t, []string{DefaultIntentModelID}, cfg.Services.Intent.Models)
	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTPPort)
	require.NoError(t, cfg.Validate())
}

func TestParse_Backends(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
backends:
  ollama:
    base_url: http://gpu-box:11434
  whisper_cpp:
    port: 9000
`), "")
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Backends.Ollama.BaseURL)
	assert.Equal(t, 9000, cfg.Backends.WhisperCPP.Port)
	assert.Equal(t, "whisper-server", cfg.Backends.WhisperCPP.BinPath)
	assert.Equal(t, "llama-embedding", cfg.Backends.LlamaCPP.BinPath)
	assert.Equal(t, envvar.OpenAIAPIKey, cfg.Backends.OpenAI.APIKeyEnv)

	_, err = Parse([]byte(`
version: "1"
backends:
  ollama:
    url: http://x
`), "")
	assert.Error(t, err)
}

func TestParse_CustomModels(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
storage:
  models_dir: ~/models
models:
  nomic:
    type: embedding
    backend: ollama
    name: nomic-embed-text
    parameters:
      base_url: http://localhost:11434
  whisper-base:
    type: stt
    backend: whisper.cpp
    source:
      huggingface:
        repo: ggerganov/whisper.cpp
        include: ["ggml-base.bin"]
services:
  intent:
    models: [nomic]
  stt:
    models: [whisper-base]
`), "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	nomic := cfg.Models["nomic"]
	assert.Equal(t, "ollama", nomic.Backend)
	assert.Equal(t, "http://localhost:11434", nomic.Parameters["base_url"])

	whisperBase := cfg.Models["whisper-base"]
	src, err := whisperBase.GetSource()
	require.NoError(t, err)
	hf, ok := src.(HuggingFaceSource)
	require.True(t, ok)
	assert.Equal(t, "ggerganov/whisper.cpp", hf.Repo)
	assert.Equal(t, []string{"ggml-base.bin"}, hf.Include)

	// Built-in models stay available next to custom ones.
	assert.Contains(t, cfg.Models, DefaultIntentModelID)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"invalid yaml", "version: [1"},
		{"missing version", "services: {}"},
		{"unknown top level key", "version: \"1\"\nextra: true"},
		{"threshold out of range", "version: \"1\"\nservices:\n  intent:\n    threshold: 1.5"},
		{"bad timeout", "version: \"1\"\nservices:\n  intent:\n    timeout: soon"},
		{"unknown backend", "version: \"1\"\nmodels:\n  x:\n    type: embedding\n    backend: word2vec\n    name: x"},
		{"two sources", "version: \"1\"\nmodels:\n  x:\n    type: stt\n    backend: faster-whisper\n    source:\n      local: {path: a}\n      huggingface: {repo: b}"},
		{"bad port", "version: \"1\"\nserver:\n  http_port: 70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "")
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default is valid", func(*Config) {}, ""},
		{"threshold too high", func(c *Config) { c.Services.Intent.Threshold = 1.01 }, "threshold"},
		{"undefined model", func(c *Config) { c.Services.Intent.Models = []string{"ghost"} }, `model "ghost" is not defined`},
		{"stt model on intent", func(c *Config) { c.Services.Intent.Models = []string{DefaultSTTModelID} }, "want \"embedding\""},
		{"backend kind mismatch", func(c *Config) {
			m := c.Models[DefaultIntentModelID]
			m.Backend = "faster-whisper"
			c.Models[DefaultIntentModelID] = m
		}, "serves"},
		{"no source and no name", func(c *Config) {
			m := c.Models[DefaultIntentModelID]
			m.Name = ""
			c.Models[DefaultIntentModelID] = m
		}, "source or a name"},
		{"negative timeout", func(c *Config) { c.Services.STT.Timeout = -time.Second }, "timeout"},
		{"empty python", func(c *Config) { c.Runtime.Python = "" }, "runtime.python"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(envvar.EchocodePython, "/opt/venv/bin/python")
	t.Setenv(envvar.EchocodeIntentThreshold, "0.7")
	t.Setenv(envvar.EchocodeModelsPath, "/data/models")
	t.Setenv(envvar.EchocodeServerHTTPPort, "9000")
	t.Setenv(envvar.EchocodeLogLevel, "DEBUG")

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, "/opt/venv/bin/python", cfg.Runtime.Python)
	assert.Equal(t, 0.7, cfg.Services.Intent.Threshold)
	assert.Equal(t, "/data/models", cfg.Storage.ModelsDir)
	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnv_IntentModel(t *testing.T) {
	t.Run("configured id", func(t *testing.T) {
		t.Setenv(envvar.EchocodeIntentModel, DefaultIntentModelID)

		cfg := Default()
		require.NoError(t, ApplyEnv(cfg))
		require.NoError(t, cfg.Validate())

		assert.Equal(t, []string{DefaultIntentModelID}, cfg.Services.Intent.Models)
		assert.Equal(t, DefaultIntentModel, cfg.Models[DefaultIntentModelID].Name)
	})

	t.Run("model name", func(t *testing.T) {
		const name = "paraphrase-multilingual-MiniLM-L12-v2"
		t.Setenv(envvar.EchocodeIntentModel, name)

		cfg := Default()
		require.NoError(t, ApplyEnv(cfg))
		require.NoError(t, cfg.Validate())

		id, err := cfg.IntentModelID()
		require.NoError(t, err)
		assert.Equal(t, name, id)
		assert.Equal(t, ModelConfig{Name: name, Type: ModelTypeEmbedding, Backend: DefaultIntentBackend}, cfg.Models[name])
	})
}

func TestUseIntentModel_NilModels(t *testing.T) {
	cfg := &Config{}
	cfg.UseIntentModel("all-mpnet-base-v2")

	assert.Equal(t, []string{"all-mpnet-base-v2"}, cfg.Services.Intent.Models)
	assert.Equal(t, DefaultIntentBackend, cfg.Models["all-mpnet-base-v2"].Backend)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv(envvar.EchocodeIntentThreshold, "high")
	assert.ErrorIs(t, ApplyEnv(Default()), ErrInvalid)
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing optional file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.yaml"), "", false)
		require.NoError(t, err)
		assert.Equal(t, Default().Services.Intent.Threshold, cfg.Services.Intent.Threshold)
	})

	t.Run("missing required file fails", func(t *testing.T) {
		_, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.yaml"), "", true)
		assert.Error(t, err)
	})

	t.Run("existing file is loaded", func(t *testing.T) {
		path := writeConfig(t, "version: \"1\"\nservices:\n  intent:\n    threshold: 0.42\n")
		cfg, err := LoadOrDefault(path, "", false)
		require.NoError(t, err)
		assert.Equal(t, 0.42, cfg.Services.Intent.Threshold)
	})

	t.Run("external schema file", func(t *testing.T) {
		schemaPath := filepath.Join(t.TempDir(), SchemaURL)
		require.NoError(t, os.WriteFile(schemaPath, []byte(Schema()), 0o644))

		path := writeConfig(t, "version: \"1\"\n")
		_, err := LoadOrDefault(path, schemaPath, true)
		require.NoError(t, err)
	})
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nservices:\n  intent:\n    threshold: 0.5\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 0.5, w.Snapshot().Services.Intent.Threshold)

	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\nservices:\n  intent:\n    threshold: 0.65\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 0.65, cfg.Services.Intent.Threshold)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	assert.Equal(t, 0.65, w.Snapshot().Services.Intent.Threshold)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestWatcher_InvalidReloadKeepsSnapshot(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\n")

	failed := make(chan error, 4)
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		if err != nil {
			failed <- err
		}
	})
	require.NoError(t, err)
	defer w.Close()

	before := w.Snapshot()
	require.NoError(t, os.WriteFile(path, []byte("version: [broken"), 0o644))

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reload failure was not reported")
	}

	assert.Same(t, before, w.Snapshot())
}
