package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/model"
	"github.com/ekisa-team/echocode-voice/internal/xfs"
)

// NoSpeechText is reported when a transcription has no text.
const NoSpeechText = "No speech detected."

// Transcript is the result of a transcription.
type Transcript struct {
	Text     string                    `json:"text"`
	ModelID  string                    `json:"model_id"`
	Language string                    `json:"language,omitempty"`
	Segments []backend.Segment         `json:"segments,omitempty"`
	NoSpeech bool                      `json:"no_speech"`
	Metadata *backend.ResponseMetadata `json:"metadata,omitempty"`
}

// STT is a service abstraction for speech-to-text.
type STT struct {
	backends *backend.Registry
	models   Models
	config   Snapshot
}

// NewSTT creates a new STT service.
func NewSTT(backends *backend.Registry, models Models, config Snapshot) *STT {
	return &STT{
		backends: backends,
		models:   models,
		config:   config,
	}
}

// Transcribe transcribes the audio file at audioPath. An empty modelID uses the
// model assigned to the stt service.
func (s *STT) Transcribe(ctx context.Context, modelID, audioPath string, params map[string]any) (Transcript, error) {
	cfg := s.config()

	if modelID == "" {
		id, err := cfg.STTModelID()
		if err != nil {
			return Transcript{}, fmt.Errorf("stt service: %w", err)
		}
		modelID = id
	}

	mi, b, err := lookup(s.backends, s.models, modelID)
	if err != nil {
		return Transcript{}, err
	}

	if err := checkModelPath(mi); err != nil {
		return Transcript{}, err
	}

	if !xfs.Exists(audioPath) {
		return Transcript{}, fmt.Errorf("%w at %s", ErrAudioNotFound, audioPath)
	}

	modelPath, err := backend.ResolveModelPath(b, mi.Path)
	if err != nil {
		mi.SetError(err)
		return Transcript{}, err
	}

	if timeout := cfg.Services.STT.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p := mergeParams(mi.Config.Parameters, params)
	p["audio_path"] = audioPath

	resp, err := b.Infer(ctx, &backend.Request{
		ModelPath:  modelPath,
		Parameters: p,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("stt service: %s: %w", b.Provider(), err)
	}

	data, err := io.ReadAll(resp.Output)
	if err != nil {
		return Transcript{}, fmt.Errorf("stt service: failed to read output: %w", err)
	}

	if mi.Status() != model.ModelStatusLoaded {
		mi.SetStatus(model.ModelStatusLoaded)
	}

	t := Transcript{
		Text:     strings.TrimSpace(string(data)),
		ModelID:  modelID,
		Metadata: resp.Metadata,
	}
	if resp.Metadata != nil {
		t.Language, _ = resp.Metadata.BackendSpecific["language"].(string)
		t.Segments, _ = resp.Metadata.BackendSpecific["segments"].([]backend.Segment)
	}

	if t.Text == "" {
		t.Text = NoSpeechText
		t.NoSpeech = true
	}

	slog.Debug("Transcription finished", "model_id", modelID, "chars", len(t.Text), "no_speech", t.NoSpeech)
	return t, nil
}

// checkModelPath verifies models that come from a source exist on disk.
// Models given only by name are resolved by their backend.
func checkModelPath(mi *model.Instance) error {
	info := mi.Info()
	if info.Status == model.ModelStatusFailed && mi.Path == "" {
		return fmt.Errorf("%w: %s: %s", ErrModelPathNotFound, mi.ID, info.Error)
	}

	if _, err := mi.Config.GetSource(); err != nil {
		return nil
	}

	if !xfs.Exists(mi.Path) {
		return fmt.Errorf("%w at %s", ErrModelPathNotFound, mi.Path)
	}

	return nil
}
