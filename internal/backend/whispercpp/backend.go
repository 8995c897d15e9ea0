//go:build whisper

package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

// Backend implements backend.Backend with the whisper.cpp Go bindings.
type Backend struct {
	threads int
	models  map[string]whisper.Model
	// whisper.cpp contexts are not safe for concurrent use.
	mu sync.Mutex
}

// NewBackend creates an in-process whisper.cpp backend.
func NewBackend(opts Options) (backend.Backend, error) {
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	return &Backend{
		threads: threads,
		models:  map[string]whisper.Model{},
	}, nil
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderWhisperCPPGo
}

// ResolveModelPath implements backend.ModelLocator.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	return backend.FindModelFile(basePath, backend.GGMLModelPattern)
}

// Infer implements backend.Backend. Audio must be a 16 kHz WAV file given by the
// "audio_path" parameter.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	audioPath := mapsafe.Get(req.Parameters, "audio_path", "")
	if audioPath == "" {
		return nil, errors.New("whispercpp: audio_path parameter is required")
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: failed to open audio: %w", err)
	}
	samples, err := DecodeWAV(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	modelPath, err := b.ResolveModelPath(req.ModelPath)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	model, err := b.model(modelPath)
	if err != nil {
		return nil, err
	}

	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whispercpp: create context: %w", err)
	}

	language := mapsafe.Get(req.Parameters, "language", "auto")
	if err := wctx.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("whispercpp: set language: %w", err)
	}
	wctx.SetTranslate(mapsafe.Get(req.Parameters, "translate", false))
	wctx.SetThreads(uint(b.threads))
	if beam := mapsafe.Get(req.Parameters, "beam_size", 0); beam > 0 {
		wctx.SetBeamSize(beam)
	}
	if prompt := mapsafe.Get(req.Parameters, "prompt", ""); prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	start := time.Now()

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whispercpp: process: %w", err)
	}

	var segments []backend.Segment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whispercpp: next segment: %w", err)
		}

		segments = append(segments, backend.Segment{
			Text:  s.Text,
			Start: s.Start.Seconds(),
			End:   s.End.Seconds(),
		})
	}

	detected := wctx.DetectedLanguage()
	if detected == "" {
		detected = wctx.Language()
	}

	text := backend.JoinSegments(segments)

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           modelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"language": detected,
				"segments": segments,
			},
		},
	}, nil
}

func (b *Backend) model(path string) (whisper.Model, error) {
	if m, ok := b.models[path]; ok {
		return m, nil
	}

	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", path, err)
	}

	b.models[path] = m
	return m, nil
}

// Close implements backend.Backend and frees every loaded model.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for path, m := range b.models {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.models, path)
	}

	return errors.Join(errs...)
}
