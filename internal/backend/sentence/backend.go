// Package sentence embeds text with sentence-transformers models running in a
// pool of Python worker processes.
package sentence

import (
	"bytes"
	"context"
	_ "embed"
	"sync"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/backend/pyruntime"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

//go:embed embed_worker.py
var workerScript []byte

const scriptName = "embed_worker.py"

// Requirements are installed into the runtime venv before the first worker starts.
var Requirements = []string{
	"sentence-transformers>=2.2.2",
	"numpy>=1.21.0",
}

// Options configures the backend.
type Options struct {
	Runtime *pyruntime.Runtime
	Device  string
	Workers int
}

// Backend implements backend.Backend for sentence-transformers.
type Backend struct {
	runtime *pyruntime.Runtime
	device  string
	workers int
	pools   map[string]*pool
	mu      sync.Mutex
	closed  bool
}

// NewBackend creates a sentence-transformers backend. No process starts until
// the first Infer call.
func NewBackend(opts Options) *Backend {
	device := opts.Device
	if device == "" {
		device = "cpu"
	}

	return &Backend{
		runtime: opts.Runtime,
		device:  device,
		workers: opts.Workers,
		pools:   map[string]*pool{},
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderSentenceTransformers
}

// Infer implements backend.Backend. Request.ModelPath is a local model folder
// or a model name sentence-transformers can resolve.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	texts, err := embedding.DecodeWireRequest(req)
	if err != nil {
		return nil, err
	}

	p, err := b.pool(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	body, err := embedding.EncodeWireResponse(vectors)
	if err != nil {
		return nil, err
	}

	return &backend.Response{
		Output: bytes.NewReader(body),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(body)),
			BackendSpecific: map[string]any{
				"texts":   len(texts),
				"workers": cap(p.slots),
			},
		},
	}, nil
}

func (b *Backend) pool(ctx context.Context, req *backend.Request) (*pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	if p, ok := b.pools[req.ModelPath]; ok {
		return p, nil
	}

	script, err := b.runtime.WriteScript(scriptName, workerScript)
	if err != nil {
		return nil, err
	}

	python, err := b.runtime.Interpreter(ctx, Requirements)
	if err != nil {
		return nil, err
	}

	cfg := workerConfig{
		ModelName:           req.ModelPath,
		Device:              mapsafe.Get(req.Parameters, "device", b.device),
		NormalizeEmbeddings: mapsafe.Get(req.Parameters, "normalize_embeddings", true),
	}

	p := newPool(b.workers, b.runtime.Runner(), python, script, cfg)
	b.pools[req.ModelPath] = p

	return p, nil
}

// Close implements backend.Backend and stops every worker.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for model, p := range b.pools {
		p.close()
		delete(b.pools, model)
	}

	return nil
}

var _ backend.Backend = (*Backend)(nil)
