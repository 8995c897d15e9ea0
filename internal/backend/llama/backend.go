// Package llama embeds text with llama.cpp's llama-embedding tool.
package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

// DefaultBinPath is the llama.cpp embedding tool looked up in PATH.
const DefaultBinPath = "llama-embedding"

// separator splits prompts; it must not occur in command text.
const separator = "<#echocode#>"

// Backend implements backend.Backend for llama.cpp GGUF embedding models.
type Backend struct {
	executor *backend.Executor
}

// NewBackend creates a new llama.cpp backend. A nil runner runs the real binary.
func NewBackend(binPath string, runner backend.CommandRunner) *Backend {
	if binPath == "" {
		binPath = DefaultBinPath
	}
	if runner == nil {
		runner = backend.ExecCommandRunner{}
	}

	return &Backend{
		executor: backend.NewExecutorWithRunner(binPath, time.Minute, runner),
	}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderLlamaCPP
}

// ResolveModelPath implements backend.ModelLocator. It picks the first GGUF
// file in a downloaded folder.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	return backend.FindModelFile(basePath, backend.GGUFModelPattern)
}

type embeddingOutput struct {
	Data []struct {
		Index     int              `json:"index"`
		Embedding embedding.Vector `json:"embedding"`
	} `json:"data"`
}

// Infer embeds every text in one process run.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	texts, err := embedding.DecodeWireRequest(req)
	if err != nil {
		return nil, err
	}

	for i, t := range texts {
		if strings.Contains(t, separator) {
			return nil, fmt.Errorf("text %d contains the prompt separator", i)
		}
	}

	args := b.buildArgs(req, texts)
	start := time.Now()

	stdout, stderr, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	vectors, err := parseOutput(stdout, len(texts))
	if err != nil {
		return nil, err
	}

	encoded, err := embedding.EncodeWireResponse(vectors)
	if err != nil {
		return nil, err
	}

	return &backend.Response{
		Output: bytes.NewReader(encoded),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(encoded)),
			BackendSpecific: map[string]any{
				"args": strings.Join(args, " "),
			},
		},
	}, nil
}

// buildArgs builds llama-embedding command-line arguments.
func (b *Backend) buildArgs(req *backend.Request, texts []string) []string {
	args := []string{
		"--model", req.ModelPath,
		"--prompt", strings.Join(texts, separator),
		"--embd-separator", separator,
		"--embd-output-format", "json",
		// 2 is euclidean normalization.
		"--embd-normalize", strconv.Itoa(mapsafe.Get(req.Parameters, "normalize", 2)),
	}

	p := req.Parameters

	if v := mapsafe.Get(p, "pooling", ""); v != "" {
		args = append(args, "--pooling", v)
	}
	if v := mapsafe.Get(p, "n_ctx", 0); v > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(v))
	}
	if v := mapsafe.Get(p, "n_gpu_layers", -1); v >= 0 {
		args = append(args, "-ngl", strconv.Itoa(v))
	}
	if v := mapsafe.Get(p, "threads", 0); v > 0 {
		args = append(args, "-t", strconv.Itoa(v))
	}

	return append(args, "--no-warmup", "--log-disable")
}

// parseOutput extracts the JSON document llama-embedding prints, skipping any
// log lines before it.
func parseOutput(stdout []byte, want int) ([]embedding.Vector, error) {
	i := bytes.IndexByte(stdout, '{')
	if i < 0 {
		return nil, fmt.Errorf("no JSON in llama-embedding output")
	}

	var out embeddingOutput
	if err := json.NewDecoder(bytes.NewReader(stdout[i:])).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode llama-embedding output: %w", err)
	}

	if len(out.Data) != want {
		return nil, fmt.Errorf("llama-embedding returned %d embeddings for %d texts", len(out.Data), want)
	}

	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vectors := make([]embedding.Vector, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// Close cleans up resources. Every request runs its own process.
func (b *Backend) Close() error {
	return nil
}
