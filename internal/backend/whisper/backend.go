// Package whisper transcribes audio through a whisper.cpp whisper-server subprocess.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

const (
	ServerName  = "whisper.cpp"
	DefaultPort = 8082
	DefaultBin  = "whisper-server"
)

// ServerStarter starts and stops backend servers. *backend.ServerManager implements it.
type ServerStarter interface {
	StartServer(cfg backend.ServerConfig) error
	StopServer(name string, port int) error
}

// Backend implements backend.Backend for whisper.cpp.
type Backend struct {
	binPath string
	servers ServerStarter
	client  *http.Client
	port    int
	model   string
	mu      sync.Mutex
}

// TranscriptionRequest represents a request to the whisper-server API.
type TranscriptionRequest struct {
	Language     string
	Prompt       string
	Temperature  float64
	BeamSize     int
	BestOf       int
	Translate    bool
	NoTimestamps bool
}

// TranscriptionResponse represents a verbose_json response from the whisper-server API.
type TranscriptionResponse struct {
	Task             string              `json:"task,omitempty"`
	Language         string              `json:"language,omitempty"`
	Duration         float64             `json:"duration,omitempty"`
	Text             string              `json:"text,omitempty"`
	Segments         []TranscriptSegment `json:"segments,omitempty"`
	DetectedLanguage string              `json:"detected_language,omitempty"`
}

// TranscriptSegment represents a single segment in the transcription.
type TranscriptSegment struct {
	ID           int     `json:"id"`
	Text         string  `json:"text"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Temperature  float64 `json:"temperature,omitempty"`
	AvgLogprob   float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// NewBackend creates a whisper.cpp backend. An empty binPath uses DefaultBin and
// a zero port uses DefaultPort.
func NewBackend(binPath string, port int, servers ServerStarter) *Backend {
	if binPath == "" {
		binPath = DefaultBin
	}
	if port == 0 {
		port = DefaultPort
	}

	return &Backend{
		binPath: binPath,
		servers: servers,
		client: &http.Client{
			Timeout: 5 * time.Minute, // Transcription can take longer
		},
		port: port,
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderWhisperCPP
}

// ResolveModelPath implements backend.ModelLocator. It picks the first ggml
// model file in a downloaded folder.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	return backend.FindModelFile(basePath, backend.GGMLModelPattern)
}

// ensureServer starts whisper-server for model, restarting it when the model changed.
func (b *Backend) ensureServer(model string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.model != "" && b.model != model {
		if err := b.servers.StopServer(ServerName, b.port); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		b.model = ""
	}

	args := []string{
		"--model", model,
		"--port", fmt.Sprintf("%d", b.port),
		"--host", "127.0.0.1",
	}

	if err := b.servers.StartServer(backend.ServerConfig{
		Name:       ServerName,
		BinPath:    b.binPath,
		Args:       args,
		Port:       b.port,
		HealthPath: "/", // whisper-server has no dedicated health endpoint
	}); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	b.model = model
	return nil
}

// Infer implements backend.Backend.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	modelPath, err := b.ResolveModelPath(req.ModelPath)
	if err != nil {
		return nil, err
	}

	if err := b.ensureServer(modelPath); err != nil {
		return nil, err
	}

	audio, name, err := readAudio(req)
	if err != nil {
		return nil, err
	}

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := addTranscriptionParams(writer, buildTranscriptionRequest(req)); err != nil {
		return nil, fmt.Errorf("failed to add parameters: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx,
		http.MethodPost,
		fmt.Sprintf("http://127.0.0.1:%d/inference", b.port),
		&requestBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return nil, fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, body)
	}

	var transcription TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcription); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	segments := make([]backend.Segment, len(transcription.Segments))
	for i, s := range transcription.Segments {
		segments[i] = backend.Segment{Text: s.Text, Start: s.Start, End: s.End}
	}

	text := backend.JoinSegments(segments)
	if len(segments) == 0 {
		text = strings.TrimSpace(transcription.Text)
	}

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           modelPath,
			Timestamp:       time.Now(),
			DurationSeconds: elapsed,
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"language": transcription.Language,
				"segments": segments,
			},
		},
	}, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.model = ""
	return b.servers.StopServer(ServerName, b.port)
}

func readAudio(req *backend.Request) ([]byte, string, error) {
	if path := mapsafe.Get(req.Parameters, "audio_path", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read audio file: %w", err)
		}
		return data, filepath.Base(path), nil
	}

	if req.Input == nil {
		return nil, "", fmt.Errorf("request has no audio")
	}

	data, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio input: %w", err)
	}

	return data, "audio.wav", nil
}

// buildTranscriptionRequest builds a TranscriptionRequest from a backend.Request.
func buildTranscriptionRequest(req *backend.Request) *TranscriptionRequest {
	p := req.Parameters

	return &TranscriptionRequest{
		Language:     mapsafe.Get(p, "language", ""),
		Temperature:  mapsafe.Get(p, "temperature", 0.0),
		Translate:    mapsafe.Get(p, "translate", false),
		NoTimestamps: mapsafe.Get(p, "no_timestamps", false),
		Prompt:       mapsafe.Get(p, "prompt", ""),
		BeamSize:     mapsafe.Get(p, "beam_size", -1),
		BestOf:       mapsafe.Get(p, "best_of", 2),
	}
}

// addTranscriptionParams adds transcription parameters to the multipart writer.
func addTranscriptionParams(w *multipart.Writer, req *TranscriptionRequest) error {
	params := map[string]string{
		"response_format": "verbose_json",
		"temperature":     fmt.Sprintf("%.2f", req.Temperature),
		"translate":       fmt.Sprintf("%t", req.Translate),
		"no_timestamps":   fmt.Sprintf("%t", req.NoTimestamps),
	}

	if req.Language != "" {
		params["language"] = req.Language
	}

	if req.BeamSize >= 0 {
		params["beam_size"] = fmt.Sprintf("%d", req.BeamSize)
	}

	if req.BestOf > 0 {
		params["best_of"] = fmt.Sprintf("%d", req.BestOf)
	}

	if req.Prompt != "" {
		params["prompt"] = req.Prompt
	}

	for key, value := range params {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	return nil
}
