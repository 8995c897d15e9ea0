package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ekisa-team/echocode-voice/internal/backend"
)

// WireRequest is the JSON body embedding backends receive as Request.Input.
type WireRequest struct {
	Texts []string `json:"texts"`
}

// WireResponse is the JSON body embedding backends produce as Response.Output.
type WireResponse struct {
	Embeddings []Vector `json:"embeddings"`
}

// BackendProvider embeds text through an embedding backend.
type BackendProvider struct {
	backend    backend.Backend
	modelPath  string
	parameters map[string]any
}

// NewBackendProvider binds b to one model.
func NewBackendProvider(b backend.Backend, modelPath string, parameters map[string]any) *BackendProvider {
	return &BackendProvider{
		backend:    b,
		modelPath:  modelPath,
		parameters: parameters,
	}
}

// Embed implements Provider.
func (p *BackendProvider) Embed(ctx context.Context, texts ...string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(WireRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to encode request: %w", err)
	}

	resp, err := p.backend.Infer(ctx, &backend.Request{
		ModelPath:  p.modelPath,
		Input:      bytes.NewReader(body),
		Parameters: p.parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w", p.backend.Provider(), err)
	}

	var out WireResponse
	if err := json.NewDecoder(resp.Output).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedding: failed to decode %s response: %w", p.backend.Provider(), err)
	}

	if err := checkCount(texts, out.Embeddings); err != nil {
		return nil, err
	}

	return out.Embeddings, nil
}

// DecodeWireRequest reads the texts an embedding backend was asked to embed.
func DecodeWireRequest(req *backend.Request) ([]string, error) {
	if req.Input == nil {
		return nil, fmt.Errorf("embedding: request has no input")
	}

	var in WireRequest
	if err := json.NewDecoder(req.Input).Decode(&in); err != nil {
		return nil, fmt.Errorf("embedding: failed to decode request: %w", err)
	}

	return in.Texts, nil
}

// EncodeWireResponse renders vectors as an embedding backend response body.
func EncodeWireResponse(vectors []Vector) ([]byte, error) {
	data, err := json.Marshal(WireResponse{Embeddings: vectors})
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to encode response: %w", err)
	}

	return data, nil
}
