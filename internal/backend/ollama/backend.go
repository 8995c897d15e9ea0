// Package ollama embeds text through a running Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

// DefaultBaseURL is where a local Ollama listens by default.
const DefaultBaseURL = "http://127.0.0.1:11434"

// Backend implements backend.Backend for the Ollama embed API.
type Backend struct {
	baseURL string
	client  *http.Client
}

type embedRequest struct {
	Model     string         `json:"model"`
	Input     []string       `json:"input"`
	Truncate  *bool          `json:"truncate,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type embedResponse struct {
	Model           string             `json:"model"`
	Embeddings      []embedding.Vector `json:"embeddings"`
	TotalDuration   int64              `json:"total_duration"`
	LoadDuration    int64              `json:"load_duration"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewBackend creates an Ollama backend. An empty baseURL uses DefaultBaseURL.
func NewBackend(baseURL string) *Backend {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Minute, // First call loads the model
		},
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderOllama
}

// Infer implements backend.Backend. Request.ModelPath is the Ollama model name.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	texts, err := embedding.DecodeWireRequest(req)
	if err != nil {
		return nil, err
	}

	p := req.Parameters
	body := embedRequest{
		Model:     req.ModelPath,
		Input:     texts,
		KeepAlive: mapsafe.Get(p, "keep_alive", ""),
	}
	if v, ok := p["truncate"].(bool); ok {
		body.Truncate = &v
	}
	if v, ok := p["options"].(map[string]any); ok {
		body.Options = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds()

	if resp.StatusCode != http.StatusOK {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, data)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	encoded, err := embedding.EncodeWireResponse(out.Embeddings)
	if err != nil {
		return nil, err
	}

	return &backend.Response{
		Output: bytes.NewReader(encoded),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: elapsed,
			OutputBytes:     int64(len(encoded)),
			BackendSpecific: map[string]any{
				"total_duration_ns": out.TotalDuration,
				"load_duration_ns":  out.LoadDuration,
				"prompt_eval_count": out.PromptEvalCount,
			},
		},
	}, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
