// Package openai embeds text through the OpenAI embeddings API or any
// server compatible with it.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

// Backend implements backend.Backend for OpenAI embeddings.
type Backend struct {
	client openai.Client
}

// NewBackend creates an OpenAI backend. An empty baseURL keeps the client default.
func NewBackend(apiKey, baseURL string, opts ...option.RequestOption) *Backend {
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	options = append(options, opts...)

	return &Backend{
		client: openai.NewClient(options...),
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderOpenAI
}

// Infer implements backend.Backend. Request.ModelPath is the embedding model name.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	texts, err := embedding.DecodeWireRequest(req)
	if err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(req.ModelPath),
	}
	if dims := mapsafe.Get(req.Parameters, "dimensions", 0); dims > 0 {
		params.Dimensions = openai.Int(int64(dims))
	}

	start := time.Now()

	resp, err := b.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}

	elapsed := time.Since(start).Seconds()

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([]embedding.Vector, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}

	encoded, err := embedding.EncodeWireResponse(vectors)
	if err != nil {
		return nil, err
	}

	return &backend.Response{
		Output: bytes.NewReader(encoded),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           resp.Model,
			Timestamp:       time.Now(),
			DurationSeconds: elapsed,
			OutputBytes:     int64(len(encoded)),
			BackendSpecific: map[string]any{
				"prompt_tokens": resp.Usage.PromptTokens,
				"total_tokens":  resp.Usage.TotalTokens,
			},
		},
	}, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}
