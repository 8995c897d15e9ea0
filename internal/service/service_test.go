package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
	"github.com/ekisa-team/echocode-voice/internal/intent"
	"github.com/ekisa-team/echocode-voice/internal/model"
)

// embedBackend maps known texts to fixed vectors; anything else gets {0, 1}.
type embedBackend struct {
	vectors map[string]embedding.Vector
	mu      sync.Mutex
	calls   int
	paths   []string
	delay   time.Duration
}

func (b *embedBackend) Provider() backend.BackendProvider {
	return backend.BackendProviderSentenceTransformers
}

func (b *embedBackend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	b.mu.Lock()
	b.calls++
	b.paths = append(b.paths, req.ModelPath)
	b.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	texts, err := embedding.DecodeWireRequest(req)
	if err != nil {
		return nil, err
	}

	out := make([]embedding.Vector, len(texts))
	for i, t := range texts {
		if v, ok := b.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = embedding.Vector{0, 1}
		}
	}

	body, err := embedding.EncodeWireResponse(out)
	if err != nil {
		return nil, err
	}

	return &backend.Response{Output: strings.NewReader(string(body))}, nil
}

func (b *embedBackend) Close() error { return nil }

// sttBackend returns a fixed text and records the request.
type sttBackend struct {
	text string
	err  error
	req  *backend.Request
}

func (b *sttBackend) Provider() backend.BackendProvider { return backend.BackendProviderFasterWhisper }

func (b *sttBackend) Infer(_ context.Context, req *backend.Request) (*backend.Response, error) {
	b.req = req
	if b.err != nil {
		return nil, b.err
	}

	return &backend.Response{
		Output: strings.NewReader(b.text),
		Metadata: &backend.ResponseMetadata{
			Provider: b.Provider(),
			BackendSpecific: map[string]any{
				"language": "en",
				"segments": []backend.Segment{{Text: b.text, End: 1}},
			},
		},
	}, nil
}

func (b *sttBackend) Close() error { return nil }

type fixture struct {
	cfg      *config.Config
	embed    *embedBackend
	stt      *sttBackend
	backends *backend.Registry
	models   *StaticModels
	modelDir string
	audio    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	modelDir := filepath.Join(dir, "whisper-tiny")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	audio := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	cfg := config.Default()

	f := &fixture{
		cfg: cfg,
		embed: &embedBackend{vectors: map[string]embedding.Vector{
			"open the terminal":                 {1, 0},
			"terminal.open Open Terminal ":      {1, 0.1},
			"file.save Save File save the file": {0, 1},
		}},
		stt:      &sttBackend{text: " Open the terminal. "},
		backends: backend.NewRegistry(),
		modelDir: modelDir,
		audio:    audio,
	}
	require.NoError(t, f.backends.Register(f.embed))
	require.NoError(t, f.backends.Register(f.stt))

	minilm := cfg.Models[config.DefaultIntentModelID]
	tiny := cfg.Models[config.DefaultSTTModelID]
	f.models = NewStaticModels(
		model.NewModelInstance(&minilm, config.DefaultIntentModelID, minilm.Name),
		model.NewModelInstance(&tiny, config.DefaultSTTModelID, modelDir),
	)

	return f
}

var catalog = []intent.Candidate{
	{ID: "terminal.open", Title: "Open Terminal"},
	{ID: "file.save", Title: "Save File", Description: "save the file"},
}

func TestIntent_Resolve(t *testing.T) {
	f := newFixture(t)
	svc := NewIntent(f.backends, f.models, StaticSnapshot(f.cfg))
	defer svc.Close()

	d := svc.Resolve(context.Background(), intent.Payload{Transcript: "open the terminal", Commands: catalog})
	assert.Equal(t, "terminal.open", d.Command)
	assert.Greater(t, d.Score, 0.99)
	assert.Empty(t, d.Error)

	mi, _ := f.models.Registry().Get(config.DefaultIntentModelID)
	assert.Equal(t, model.ModelStatusLoaded, mi.Status())
	assert.Equal(t, []string{"all-MiniLM-L6-v2"}, f.embed.paths)
}

func TestIntent_CachesCatalog(t *testing.T) {
	f := newFixture(t)
	svc := NewIntent(f.backends, f.models, StaticSnapshot(f.cfg))
	defer svc.Close()

	p := intent.Payload{Transcript: "open the terminal", Commands: catalog}
	svc.Resolve(context.Background(), p)
	svc.Resolve(context.Background(), p)

	assert.Equal(t, 1, f.embed.calls)
}

func TestIntent_ThresholdFollowsConfig(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	current := f.cfg
	snapshot := func() *config.Config {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	svc := NewIntent(f.backends, f.models, snapshot)
	defer svc.Close()

	p := intent.Payload{Transcript: "open the terminal", Commands: catalog}
	assert.Equal(t, "terminal.open", svc.Resolve(context.Background(), p).Command)

	strict := *f.cfg
	strict.Services.Intent.Threshold = 0.999
	mu.Lock()
	current = &strict
	mu.Unlock()

	d := svc.Resolve(context.Background(), p)
	assert.Equal(t, intent.None, d.Command)
	assert.Greater(t, d.Score, 0.99)
}

func TestIntent_EmptyCatalogSkipsModel(t *testing.T) {
	f := newFixture(t)
	cfg := *f.cfg
	cfg.Services.Intent.Models = []string{"missing"}

	svc := NewIntent(f.backends, f.models, StaticSnapshot(&cfg))
	d := svc.Resolve(context.Background(), intent.Payload{Transcript: "anything"})

	assert.Equal(t, intent.NoMatch(), d)
	assert.Zero(t, f.embed.calls)
}

func TestIntent_Errors(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		f := newFixture(t)
		cfg := *f.cfg
		cfg.Services.Intent.Models = []string{"missing"}

		d := NewIntent(f.backends, f.models, StaticSnapshot(&cfg)).
			Resolve(context.Background(), intent.Payload{Transcript: "x", Commands: catalog})
		assert.Equal(t, intent.None, d.Command)
		assert.Contains(t, d.Error, "model not found")
	})

	t.Run("failed model", func(t *testing.T) {
		f := newFixture(t)
		mi, _ := f.models.Registry().Get(config.DefaultIntentModelID)
		mi.SetError(errors.New("download failed"))

		d := NewIntent(f.backends, f.models, StaticSnapshot(f.cfg)).
			Resolve(context.Background(), intent.Payload{Transcript: "x", Commands: catalog})
		assert.Contains(t, d.Error, "download failed")
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t)
		f.embed.delay = time.Second
		cfg := *f.cfg
		cfg.Services.Intent.Timeout = 20 * time.Millisecond

		d := NewIntent(f.backends, f.models, StaticSnapshot(&cfg)).
			Resolve(context.Background(), intent.Payload{Transcript: "x", Commands: catalog})
		assert.Equal(t, intent.None, d.Command)
		assert.Contains(t, d.Error, context.DeadlineExceeded.Error())
	})
}

func TestIntent_Reset(t *testing.T) {
	f := newFixture(t)
	svc := NewIntent(f.backends, f.models, StaticSnapshot(f.cfg))

	p := intent.Payload{Transcript: "open the terminal", Commands: catalog}
	svc.Resolve(context.Background(), p)
	require.NoError(t, svc.Reset())
	svc.Resolve(context.Background(), p)

	assert.Equal(t, 2, f.embed.calls)
}

func TestIntent_ResetBetweenLookupAndEmbed(t *testing.T) {
	f := newFixture(t)

	var (
		svc   *Intent
		calls atomic.Int32
	)
	// The second snapshot read happens after the provider lookup, which is
	// where a concurrent reload would land.
	snapshot := func() *config.Config {
		if calls.Add(1) == 2 {
			require.NoError(t, svc.Reset())
		}
		return f.cfg
	}
	svc = NewIntent(f.backends, f.models, snapshot)
	defer svc.Close()

	d := svc.Resolve(context.Background(), intent.Payload{Transcript: "open the terminal", Commands: catalog})
	assert.Empty(t, d.Error)
	assert.Equal(t, "terminal.open", d.Command)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestSTT_Transcribe(t *testing.T) {
	f := newFixture(t)
	svc := NewSTT(f.backends, f.models, StaticSnapshot(f.cfg))

	tr, err := svc.Transcribe(context.Background(), "", f.audio, map[string]any{"language": "en"})
	require.NoError(t, err)

	assert.Equal(t, "Open the terminal.", tr.Text)
	assert.Equal(t, config.DefaultSTTModelID, tr.ModelID)
	assert.Equal(t, "en", tr.Language)
	assert.Len(t, tr.Segments, 1)
	assert.False(t, tr.NoSpeech)

	assert.Equal(t, f.modelDir, f.stt.req.ModelPath)
	assert.Equal(t, f.audio, f.stt.req.Parameters["audio_path"])
	assert.Equal(t, "en", f.stt.req.Parameters["language"])
	assert.Equal(t, "int8", f.stt.req.Parameters["compute_type"])

	data, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text":"Open the terminal."`)
}

func TestSTT_NoSpeech(t *testing.T) {
	f := newFixture(t)
	f.stt.text = "  "

	tr, err := NewSTT(f.backends, f.models, StaticSnapshot(f.cfg)).
		Transcribe(context.Background(), "", f.audio, nil)
	require.NoError(t, err)
	assert.Equal(t, NoSpeechText, tr.Text)
	assert.True(t, tr.NoSpeech)
}

func TestSTT_Errors(t *testing.T) {
	t.Run("missing audio", func(t *testing.T) {
		f := newFixture(t)
		_, err := NewSTT(f.backends, f.models, StaticSnapshot(f.cfg)).
			Transcribe(context.Background(), "", "/nope.wav", nil)
		assert.ErrorIs(t, err, ErrAudioNotFound)
		assert.EqualError(t, err, "audio file not found at /nope.wav")
	})

	t.Run("missing model folder", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, os.RemoveAll(f.modelDir))

		_, err := NewSTT(f.backends, f.models, StaticSnapshot(f.cfg)).
			Transcribe(context.Background(), "", f.audio, nil)
		assert.ErrorIs(t, err, ErrModelPathNotFound)
		assert.EqualError(t, err, "model not found at "+f.modelDir)
	})

	t.Run("unknown model", func(t *testing.T) {
		f := newFixture(t)
		_, err := NewSTT(f.backends, f.models, StaticSnapshot(f.cfg)).
			Transcribe(context.Background(), "nope", f.audio, nil)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("backend failure", func(t *testing.T) {
		f := newFixture(t)
		f.stt.err = errors.New("decoder crashed")

		_, err := NewSTT(f.backends, f.models, StaticSnapshot(f.cfg)).
			Transcribe(context.Background(), "", f.audio, nil)
		assert.ErrorContains(t, err, "decoder crashed")
	})
}
