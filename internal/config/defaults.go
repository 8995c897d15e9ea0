package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/envvar"
	"github.com/ekisa-team/echocode-voice/internal/intent"
)

const appDir = "echocode"

// Default model and port values.
const (
	DefaultIntentModelID = "minilm"
	DefaultIntentModel   = "all-MiniLM-L6-v2"
	DefaultIntentBackend = "sentence-transformers"
	DefaultSTTModelID    = "whisper-tiny"
	DefaultHTTPPort      = 8790
	DefaultGRPCPort      = 8791
)

// DefaultConfigPath returns the default path for the echocode config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appDir, "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", appDir)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir)
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appDir)
		}
		return filepath.Join(home, ".config", appDir)
	}
}

// DefaultConfigFile returns the default config file path.
func DefaultConfigFile() string {
	return filepath.Join(DefaultConfigPath(), "config.yaml")
}

// DefaultModelsPath returns the default path for the echocode models directory.
func DefaultModelsPath() string {
	return filepath.Join(cacheRoot(), "models")
}

// DefaultRuntimePath returns the directory Python scripts and the venv live in.
func DefaultRuntimePath() string {
	return filepath.Join(cacheRoot(), "runtime")
}

func cacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appDir)
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", appDir)
	case "darwin":
		return filepath.Join(home, "Library", "Caches", appDir)
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, appDir)
		}
		return filepath.Join(home, ".cache", appDir)
	}
}

// DefaultPython returns the interpreter name used when none is configured.
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}

	return "python3"
}

// Default returns the built-in configuration. Loaded files are decoded on top of it.
func Default() *Config {
	return &Config{
		Version: "1",
		Runtime: RuntimeConfig{
			Python:  DefaultPython(),
			Dir:     DefaultRuntimePath(),
			Device:  "cpu",
			Workers: 1,
		},
		Models: map[string]ModelConfig{
			DefaultIntentModelID: {
				Name:    DefaultIntentModel,
				Type:    ModelTypeEmbedding,
				Backend: DefaultIntentBackend,
			},
			DefaultSTTModelID: {
				Source:  SourceConfig{Local: &LocalSource{Path: "whisper-tiny"}},
				Type:    ModelTypeSTT,
				Backend: "faster-whisper",
				Parameters: map[string]any{
					"compute_type": "int8",
				},
			},
		},
		Services: ServicesConfig{
			Intent: IntentServiceConfig{
				Models:    []string{DefaultIntentModelID},
				Threshold: intent.DefaultThreshold,
				Timeout:   60 * time.Second,
				CacheSize: 1024,
			},
			STT: STTServiceConfig{
				Models:  []string{DefaultSTTModelID},
				Timeout: 5 * time.Minute,
			},
		},
		Backends: BackendsConfig{
			Ollama: OllamaBackendConfig{BaseURL: "http://127.0.0.1:11434"},
			OpenAI: OpenAIBackendConfig{
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: envvar.OpenAIAPIKey,
			},
			LlamaCPP:   LlamaCPPBackendConfig{BinPath: "llama-embedding"},
			WhisperCPP: WhisperCPPBackendConfig{BinPath: "whisper-server", Port: 8082},
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
		},
		Logging: LoggingConfig{
			File: filepath.Join(DefaultConfigPath(), "logs", "echocode.log"),
		},
	}
}
