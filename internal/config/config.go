package config

import (
	"time"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"

	// SourceTypeLocal represents a model folder already present on disk.
	SourceTypeLocal SourceType = "local"
)

// ModelType is the capability a configured model provides.
type ModelType string

const (
	ModelTypeEmbedding ModelType = "embedding"
	ModelTypeSTT       ModelType = "stt"
)

// Config holds the main configuration for the application.
type Config struct {
	Version  string                 `json:"version"           yaml:"version"`
	Storage  StorageConfig          `json:"storage,omitempty" yaml:"storage,omitempty"`
	Runtime  RuntimeConfig          `json:"runtime"           yaml:"runtime"`
	Models   map[string]ModelConfig `json:"models"            yaml:"models"`
	Services ServicesConfig         `json:"services"          yaml:"services"`
	Backends BackendsConfig         `json:"backends"          yaml:"backends"`
	Server   ServerConfig           `json:"server"            yaml:"server"`
	Logging  LoggingConfig          `json:"logging"           yaml:"logging"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// RuntimeConfig describes the Python runtime used by Python-backed workers.
type RuntimeConfig struct {
	Python  string `json:"python"  yaml:"python"`
	Dir     string `json:"dir"     yaml:"dir"`
	Venv    bool   `json:"venv"    yaml:"venv"`
	Device  string `json:"device"  yaml:"device"`
	Workers int    `json:"workers" yaml:"workers"`
}

// ModelConfig holds configuration for a specific model.
type ModelConfig struct {
	Source     SourceConfig   `json:"source"               yaml:"source"`
	Name       string         `json:"name,omitempty"       yaml:"name,omitempty"`
	Type       ModelType      `json:"type"                 yaml:"type"`
	Backend    string         `json:"backend"              yaml:"backend"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Tags       []string       `json:"tags,omitempty"       yaml:"tags,omitempty"`
	Order      int            `json:"order,omitempty"      yaml:"order,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set). A model with
// no source is resolved by Name through its backend library.
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	Local       *LocalSource       `json:"local,omitempty"       yaml:"local,omitempty"`
}

// ServicesConfig holds configuration for all services.
type ServicesConfig struct {
	Intent IntentServiceConfig `json:"intent" yaml:"intent"`
	STT    STTServiceConfig    `json:"stt"    yaml:"stt"`
}

// IntentServiceConfig configures intent resolution. The first model is active.
type IntentServiceConfig struct {
	Models    []string      `json:"models"     yaml:"models"`
	Threshold float64       `json:"threshold"  yaml:"threshold"`
	Timeout   time.Duration `json:"timeout"    yaml:"timeout"`
	CacheSize int           `json:"cache_size" yaml:"cache_size"`
}

// STTServiceConfig configures speech-to-text. The first model is active.
type STTServiceConfig struct {
	Models  []string      `json:"models"  yaml:"models"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// BackendsConfig holds per-provider connection settings.
type BackendsConfig struct {
	Ollama       OllamaBackendConfig       `json:"ollama"         yaml:"ollama"`
	OpenAI       OpenAIBackendConfig       `json:"openai"         yaml:"openai"`
	LlamaCPP     LlamaCPPBackendConfig     `json:"llama_cpp"      yaml:"llama_cpp"`
	WhisperCPP   WhisperCPPBackendConfig   `json:"whisper_cpp"    yaml:"whisper_cpp"`
	WhisperCPPGo WhisperCPPGoBackendConfig `json:"whisper_cpp_go" yaml:"whisper_cpp_go"`
}

// OllamaBackendConfig configures the ollama embedding backend.
type OllamaBackendConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// OpenAIBackendConfig configures the openai embedding backend. The key is
// read from the environment variable named by APIKeyEnv.
type OpenAIBackendConfig struct {
	BaseURL   string `json:"base_url"    yaml:"base_url"`
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`
}

// LlamaCPPBackendConfig configures the llama-embedding backend.
type LlamaCPPBackendConfig struct {
	BinPath string `json:"bin_path" yaml:"bin_path"`
}

// WhisperCPPBackendConfig configures the whisper-server backend.
type WhisperCPPBackendConfig struct {
	BinPath string `json:"bin_path" yaml:"bin_path"`
	Port    int    `json:"port"     yaml:"port"`
}

// WhisperCPPGoBackendConfig configures the in-process whisper.cpp backend.
type WhisperCPPGoBackendConfig struct {
	Threads int `json:"threads" yaml:"threads"`
}

// ServerConfig configures service mode listeners.
type ServerConfig struct {
	Host     string `json:"host"      yaml:"host"`
	HTTPPort int    `json:"http_port" yaml:"http_port"`
	GRPCPort int    `json:"grpc_port" yaml:"grpc_port"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	File   string `json:"file,omitempty"  yaml:"file,omitempty"`
	ToFile bool   `json:"to_file"         yaml:"to_file"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// LocalSource is a model folder on disk. Relative paths are resolved against
// the models directory.
type LocalSource struct {
	Path string `json:"path" yaml:"path"`
}

// Type returns the local source type.
func (l LocalSource) Type() SourceType {
	return SourceTypeLocal
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	switch {
	case m.Source.HuggingFace != nil:
		return *m.Source.HuggingFace, nil
	case m.Source.Local != nil:
		return *m.Source.Local, nil
	default:
		return nil, ErrNoSource
	}
}

// SetHuggingFaceSource sets the Hugging Face source.
func (m *ModelConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	m.Source = SourceConfig{HuggingFace: &source}
}

// SetLocalSource sets the local source.
func (m *ModelConfig) SetLocalSource(source LocalSource) {
	m.Source = SourceConfig{Local: &source}
}

// IntentModelID returns the model assigned to the intent service.
func (c *Config) IntentModelID() (string, error) {
	if len(c.Services.Intent.Models) == 0 {
		return "", ErrNoModelAssigned
	}

	return c.Services.Intent.Models[0], nil
}

// UseIntentModel assigns ref to the intent service. A ref that is not a
// configured model ID is taken as a model name and registered as an embedding
// model of the default intent backend under that same ID.
func (c *Config) UseIntentModel(ref string) {
	if _, ok := c.Models[ref]; !ok {
		if c.Models == nil {
			c.Models = map[string]ModelConfig{}
		}
		c.Models[ref] = ModelConfig{
			Name:    ref,
			Type:    ModelTypeEmbedding,
			Backend: DefaultIntentBackend,
		}
	}

	c.Services.Intent.Models = []string{ref}
}

// STTModelID returns the model assigned to the stt service.
func (c *Config) STTModelID() (string, error) {
	if len(c.Services.STT.Models) == 0 {
		return "", ErrNoModelAssigned
	}

	return c.Services.STT.Models[0], nil
}

// AssignedModels returns every model ID referenced by a service, deduplicated.
func (c *Config) AssignedModels() []string {
	seen := map[string]bool{}
	var out []string

	for _, list := range [][]string{c.Services.Intent.Models, c.Services.STT.Models} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	return out
}
