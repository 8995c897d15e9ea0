package backend

import (
	"context"
	"io"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderSentenceTransformers BackendProvider = "sentence-transformers"
	BackendProviderOllama               BackendProvider = "ollama"
	BackendProviderOpenAI               BackendProvider = "openai"
	BackendProviderLlamaCPP             BackendProvider = "llama.cpp"
	BackendProviderFasterWhisper        BackendProvider = "faster-whisper"
	BackendProviderWhisperCPP           BackendProvider = "whisper.cpp"
	BackendProviderWhisperCPPGo         BackendProvider = "whisper.cpp-go"
)

// Kind groups providers by the capability they serve.
type Kind string

const (
	KindEmbedding Kind = "embedding"
	KindSTT       Kind = "stt"
)

var providerKinds = map[BackendProvider]Kind{
	BackendProviderSentenceTransformers: KindEmbedding,
	BackendProviderOllama:               KindEmbedding,
	BackendProviderOpenAI:               KindEmbedding,
	BackendProviderLlamaCPP:             KindEmbedding,
	BackendProviderFasterWhisper:        KindSTT,
	BackendProviderWhisperCPP:           KindSTT,
	BackendProviderWhisperCPPGo:         KindSTT,
}

// KindOf returns the capability a provider serves, or false for unknown providers.
func KindOf(p BackendProvider) (Kind, bool) {
	k, ok := providerKinds[p]
	return k, ok
}

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Infer executes inference and returns complete result.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Request encapsulates all parameters for an inference call.
type Request struct {
	// ModelPath is the path to the model folder or file, or a library model name.
	ModelPath string

	// Input is the raw input data (JSON for embedding backends, audio bytes for stt).
	Input io.Reader

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any
}

// Response contains the result of an inference operation.
type Response struct {
	// Output is the raw output data.
	Output io.Reader

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	Timestamp       time.Time       `json:"timestamp"`
	DurationSeconds float64         `json:"duration_seconds"`
	OutputBytes     int64           `json:"output_bytes"`
	BackendSpecific map[string]any  `json:"backend_specific,omitempty"`
}

// StreamChunk represents a single line produced by a streaming command.
type StreamChunk struct {
	// Data is the chunk content.
	Data []byte

	// Done indicates if this is the final chunk.
	Done bool

	// Error if something went wrong.
	Error error
}
