package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/echocode-voice/internal/model"
	"github.com/ekisa-team/echocode-voice/internal/service"
)

type (
	TranscribeRequestDTO struct {
		ModelID    string         `json:"model_id,omitempty" doc:"Model to use. Defaults to the stt service model."`
		AudioPath  string         `json:"audio_path" minLength:"1" doc:"Path of an audio file readable by the server."`
		Parameters map[string]any `json:"parameters,omitempty"`
	}

	TranscribeInput struct {
		Body TranscribeRequestDTO
	}

	TranscribeUploadInput struct {
		RawBody huma.MultipartFormFiles[struct {
			AudioFile  huma.FormFile `form:"file" contentType:"audio/*,application/octet-stream" required:"true"`
			ModelID    string        `form:"model_id"`
			Parameters string        `form:"parameters"` // JSON-encoded optional parameters
		}]
	}

	TranscribeOutput struct {
		Body service.Transcript
	}
)

// STTHandler handles HTTP requests for STT.
type STTHandler struct {
	transcriber Transcriber
}

// NewSTTHandler creates a new STTHandler instance.
func NewSTTHandler(api huma.API, transcriber Transcriber) *STTHandler {
	h := &STTHandler{transcriber: transcriber}

	huma.Register(api, huma.Operation{
		OperationID:   "transcribe",
		Method:        http.MethodPost,
		Path:          "/v1/stt",
		Summary:       "Transcribe speech from an audio file on the server",
		Tags:          []string{"stt"},
		DefaultStatus: http.StatusOK,
	}, h.handleTranscribe)

	huma.Register(api, huma.Operation{
		OperationID:   "transcribe-upload",
		Method:        http.MethodPost,
		Path:          "/v1/stt/upload",
		Summary:       "Transcribe speech from an uploaded audio file",
		Tags:          []string{"stt"},
		DefaultStatus: http.StatusOK,
	}, h.handleUpload)

	return h
}

// handleTranscribe handles the transcribe operation.
func (h *STTHandler) handleTranscribe(ctx context.Context, input *TranscribeInput) (*TranscribeOutput, error) {
	t, err := h.transcriber.Transcribe(ctx, input.Body.ModelID, input.Body.AudioPath, input.Body.Parameters)
	if err != nil {
		return nil, transcribeError(err)
	}

	return &TranscribeOutput{Body: t}, nil
}

// handleUpload handles the transcribe-upload operation.
func (h *STTHandler) handleUpload(ctx context.Context, input *TranscribeUploadInput) (*TranscribeOutput, error) {
	formData := input.RawBody.Data()
	audioFile := formData.AudioFile

	if !audioFile.IsSet {
		return nil, huma.Error400BadRequest("audio file is required", nil)
	}

	var parameters map[string]any
	if formData.Parameters != "" {
		if err := json.Unmarshal([]byte(formData.Parameters), &parameters); err != nil {
			return nil, huma.Error400BadRequest("invalid parameters JSON", err)
		}
	}

	path, err := spool(audioFile)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read audio file", err)
	}
	defer os.Remove(path)

	t, err := h.transcriber.Transcribe(ctx, formData.ModelID, path, parameters)
	if err != nil {
		return nil, transcribeError(err)
	}

	return &TranscribeOutput{Body: t}, nil
}

func spool(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "echocode-upload-*")
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("copy upload: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

func transcribeError(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, service.ErrModelPathNotFound),
		errors.Is(err, service.ErrModelUnavailable):
		return huma.Error404NotFound("model not found", err)
	case errors.Is(err, service.ErrAudioNotFound):
		return huma.Error400BadRequest("audio file not found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("transcription timed out", err)
	default:
		return huma.Error500InternalServerError("failed to transcribe", err)
	}
}
