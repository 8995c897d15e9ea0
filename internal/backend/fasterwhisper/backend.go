// Package fasterwhisper transcribes audio with faster-whisper through an
// embedded Python script.
package fasterwhisper

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/backend/pyruntime"
	"github.com/ekisa-team/echocode-voice/mapsafe"
)

//go:embed stt_worker.py
var workerScript []byte

const scriptName = "stt_worker.py"

// Requirements are installed into the runtime venv before the first run.
var Requirements = []string{
	"faster-whisper>=1.0.0",
}

// ErrNoAudio is returned when a request has neither an audio path nor audio bytes.
var ErrNoAudio = errors.New("fasterwhisper: no audio in request")

// Options configures the backend.
type Options struct {
	Runtime     *pyruntime.Runtime
	Device      string
	ComputeType string
}

// Backend implements backend.Backend for faster-whisper.
type Backend struct {
	runtime     *pyruntime.Runtime
	device      string
	computeType string
}

// line is one JSON line written by the script.
type line struct {
	Text     *string `json:"text,omitempty"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Language string  `json:"language,omitempty"`
	Done     bool    `json:"done,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// NewBackend creates a faster-whisper backend.
func NewBackend(opts Options) *Backend {
	b := &Backend{
		runtime:     opts.Runtime,
		device:      opts.Device,
		computeType: opts.ComputeType,
	}
	if b.device == "" {
		b.device = "cpu"
	}
	if b.computeType == "" {
		b.computeType = "int8"
	}

	return b
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderFasterWhisper
}

// Infer implements backend.Backend. The audio file comes from the "audio_path"
// parameter, or Request.Input is spooled to a temporary file.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	audioPath, cleanup, err := audioFile(req)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	script, err := b.runtime.WriteScript(scriptName, workerScript)
	if err != nil {
		return nil, err
	}

	python, err := b.runtime.Interpreter(ctx, Requirements)
	if err != nil {
		return nil, err
	}

	args := append([]string{script}, b.buildArgs(req)...)
	args = append(args, audioPath)

	executor := backend.NewExecutorWithRunner(python, 0, b.runtime.Runner())

	start := time.Now()

	chunks, err := executor.Stream(ctx, args, nil)
	if err != nil {
		return nil, err
	}

	var (
		segments []backend.Segment
		language string
		done     bool
		lineErr  error
	)

	for chunk := range chunks {
		if chunk.Error != nil {
			if lineErr == nil {
				lineErr = chunk.Error
			}
			continue
		}
		if len(bytes.TrimSpace(chunk.Data)) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(chunk.Data, &l); err != nil {
			// Libraries occasionally print to stdout; only JSON lines matter.
			continue
		}

		switch {
		case l.Error != "":
			lineErr = fmt.Errorf("transcription failed: %s", l.Error)
		case l.Done:
			language = l.Language
			done = true
		case l.Text != nil:
			segments = append(segments, backend.Segment{Text: *l.Text, Start: l.Start, End: l.End})
		}
	}

	if lineErr != nil {
		return nil, lineErr
	}
	if !done {
		return nil, fmt.Errorf("transcription ended without a completion line")
	}

	text := backend.JoinSegments(segments)

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"language": language,
				"segments": segments,
			},
		},
	}, nil
}

func (b *Backend) buildArgs(req *backend.Request) []string {
	p := req.Parameters

	args := []string{
		"--model", req.ModelPath,
		"--device", mapsafe.Get(p, "device", b.device),
		"--compute-type", mapsafe.Get(p, "compute_type", b.computeType),
	}

	if v := mapsafe.Get(p, "language", ""); v != "" {
		args = append(args, "--language", v)
	}
	if v := mapsafe.Get(p, "beam_size", 0); v > 0 {
		args = append(args, "--beam-size", fmt.Sprintf("%d", v))
	}
	if mapsafe.Get(p, "vad_filter", false) {
		args = append(args, "--vad-filter")
	}

	return args
}

func audioFile(req *backend.Request) (string, func(), error) {
	if path := mapsafe.Get(req.Parameters, "audio_path", ""); path != "" {
		return path, func() {}, nil
	}

	if req.Input == nil {
		return "", nil, ErrNoAudio
	}

	f, err := os.CreateTemp("", "echocode-audio-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}

	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, req.Input); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to spool audio input: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to spool audio input: %w", err)
	}

	return f.Name(), cleanup, nil
}

// Close implements backend.Backend. Every call runs its own process.
func (b *Backend) Close() error {
	return nil
}
