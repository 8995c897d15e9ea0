package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/intent"
	"github.com/ekisa-team/echocode-voice/internal/model"
	"github.com/ekisa-team/echocode-voice/internal/service"
)

type fakeResolver struct {
	got intent.Payload
}

func (f *fakeResolver) Resolve(_ context.Context, p intent.Payload) intent.Decision {
	f.got = p
	if len(p.Commands) == 0 {
		return intent.NoMatch()
	}
	return intent.Decision{Command: p.Commands[0].ID, Score: 0.9}
}

type fakeTranscriber struct {
	err       error
	modelID   string
	audio     []byte
	params    map[string]any
	audioPath string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, modelID, audioPath string, params map[string]any) (service.Transcript, error) {
	f.modelID = modelID
	f.audioPath = audioPath
	f.params = params
	if f.err != nil {
		return service.Transcript{}, f.err
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return service.Transcript{}, fmt.Errorf("%w at %s", service.ErrAudioNotFound, audioPath)
	}
	f.audio = data

	return service.Transcript{Text: "open the file", ModelID: "whisper-tiny"}, nil
}

func newTestAPI(t *testing.T, resolver IntentResolver, transcriber Transcriber, models service.Models) humatest.TestAPI {
	t.Helper()

	if models == nil {
		models = service.NewStaticModels()
	}

	_, api := humatest.New(t)
	Register(api, Deps{Intent: resolver, STT: transcriber, Models: models})
	return api
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, &fakeResolver{}, &fakeTranscriber{}, nil)

	resp := api.Get("/healthz")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestResolveIntent(t *testing.T) {
	resolver := &fakeResolver{}
	api := newTestAPI(t, resolver, &fakeTranscriber{}, nil)

	resp := api.Post("/v1/intent", map[string]any{
		"transcript": "save everything",
		"commands": []map[string]any{
			{"id": "workbench.action.files.saveAll", "title": "Save All"},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	d := decode[intent.Decision](t, resp)
	assert.Equal(t, "workbench.action.files.saveAll", d.Command)
	assert.Equal(t, 0.9, d.Score)
	assert.Equal(t, "save everything", resolver.got.Transcript)
}

func TestResolveIntent_AlwaysOK(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError bool
	}{
		{"empty body", "", false},
		{"whitespace body", "  \n", false},
		{"malformed json", "{not json", true},
		{"wrong shape", `{"commands": "x"}`, true},
		{"null", "null", true},
		{"array", `[{"id":"echocode.saveAll"}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, &fakeResolver{}, &fakeTranscriber{}, nil)

			resp := api.Post("/v1/intent", "Content-Type: application/json", bytes.NewReader([]byte(tt.body)))
			require.Equal(t, http.StatusOK, resp.Code)

			d := decode[intent.Decision](t, resp)
			assert.Equal(t, intent.None, d.Command)
			assert.Zero(t, d.Score)
			if tt.wantError {
				assert.NotEmpty(t, d.Error)
			} else {
				assert.Empty(t, d.Error)
			}
		})
	}
}

func TestResolveIntent_RawJSON(t *testing.T) {
	const body = `{"transcript":"save everything","commands":[{"id":"echocode.saveAll","title":"Save All"}]}`

	for _, headers := range [][]any{
		{"Content-Type: application/json"},
		{},
	} {
		r := &fakeResolver{}
		api := newTestAPI(t, r, &fakeTranscriber{}, nil)

		args := append(headers, strings.NewReader(body))
		resp := api.Post("/v1/intent", args...)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		d := decode[intent.Decision](t, resp)
		assert.Equal(t, "echocode.saveAll", d.Command)
		assert.Empty(t, d.Error)
		assert.Equal(t, "save everything", r.got.Transcript)
	}
}

func TestTranscribe(t *testing.T) {
	audio := t.TempDir() + "/clip.wav"
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	tr := &fakeTranscriber{}
	api := newTestAPI(t, &fakeResolver{}, tr, nil)

	resp := api.Post("/v1/stt", map[string]any{
		"audio_path": audio,
		"parameters": map[string]any{"language": "en"},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	out := decode[service.Transcript](t, resp)
	assert.Equal(t, "open the file", out.Text)
	assert.Equal(t, audio, tr.audioPath)
	assert.Equal(t, "en", tr.params["language"])
	assert.Empty(t, tr.modelID)
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown model", &model.NotFoundError{ID: "ghost"}, http.StatusNotFound},
		{"model path missing", fmt.Errorf("%w at /models/x", service.ErrModelPathNotFound), http.StatusNotFound},
		{"model unavailable", service.ErrModelUnavailable, http.StatusNotFound},
		{"audio missing", fmt.Errorf("%w at /tmp/x.wav", service.ErrAudioNotFound), http.StatusBadRequest},
		{"timeout", fmt.Errorf("stt: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"backend failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, &fakeResolver{}, &fakeTranscriber{err: tt.err}, nil)

			resp := api.Post("/v1/stt", map[string]any{"audio_path": "/tmp/x.wav"})
			assert.Equal(t, tt.want, resp.Code)
		})
	}
}

func TestTranscribe_MissingAudioPathIsRejected(t *testing.T) {
	api := newTestAPI(t, &fakeResolver{}, &fakeTranscriber{}, nil)

	resp := api.Post("/v1/stt", map[string]any{"model_id": "whisper-tiny"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestTranscribeUpload(t *testing.T) {
	tr := &fakeTranscriber{}
	api := newTestAPI(t, &fakeResolver{}, tr, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="clip.wav"`)
	h.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF....WAVE"))
	require.NoError(t, err)

	require.NoError(t, w.WriteField("model_id", "whisper-tiny"))
	require.NoError(t, w.WriteField("parameters", `{"beam_size": 5}`))
	require.NoError(t, w.Close())

	resp := api.Post("/v1/stt/upload", "Content-Type: "+w.FormDataContentType(), &body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.Equal(t, "whisper-tiny", tr.modelID)
	assert.Equal(t, []byte("RIFF....WAVE"), tr.audio)
	assert.Equal(t, float64(5), tr.params["beam_size"])

	_, err = os.Stat(tr.audioPath)
	assert.True(t, os.IsNotExist(err), "spooled upload should be removed")
}

func TestListModels(t *testing.T) {
	cfg := config.Default()
	intentCfg := cfg.Models[config.DefaultIntentModelID]
	sttCfg := cfg.Models[config.DefaultSTTModelID]

	minilm := model.NewModelInstance(&intentCfg, config.DefaultIntentModelID, config.DefaultIntentModel)
	minilm.SetStatus(model.ModelStatusLoaded)
	whisper := model.NewModelInstance(&sttCfg, config.DefaultSTTModelID, "")
	whisper.SetError(errors.New("model not found at /models/whisper-tiny"))

	api := newTestAPI(t, &fakeResolver{}, &fakeTranscriber{}, service.NewStaticModels(minilm, whisper))

	resp := api.Get("/v1/models")
	require.Equal(t, http.StatusOK, resp.Code)

	out := decode[struct {
		Models []model.Info `json:"models"`
	}](t, resp)
	require.Len(t, out.Models, 2)

	byID := map[string]model.Info{}
	for _, m := range out.Models {
		byID[m.ID] = m
	}
	assert.Equal(t, model.ModelStatusLoaded, byID[config.DefaultIntentModelID].Status)
	assert.Equal(t, model.ModelStatusFailed, byID[config.DefaultSTTModelID].Status)
	assert.Contains(t, byID[config.DefaultSTTModelID].Error, "model not found")
}

func TestListModels_Empty(t *testing.T) {
	api := newTestAPI(t, &fakeResolver{}, &fakeTranscriber{}, nil)

	resp := api.Get("/v1/models")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"models": []}`, resp.Body.String())
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, seen)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("propagated", func(t *testing.T) {
		want := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, want)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, want, seen)
	})

	t.Run("invalid replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "not-a-uuid\r\n")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.NotEqual(t, "not-a-uuid\r\n", rec.Header().Get(RequestIDHeader))
	})
}

func TestServe_GracefulShutdown(t *testing.T) {
	srv := New(Deps{
		Intent:  &fakeResolver{},
		STT:     &fakeTranscriber{},
		Models:  service.NewStaticModels(),
		Version: "test",
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
