package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ekisa-team/echocode-voice/internal/intent"
	"github.com/ekisa-team/echocode-voice/internal/service"
)

const shutdownTimeout = 10 * time.Second

// IntentResolver resolves intent payloads. *service.Intent implements it.
type IntentResolver interface {
	Resolve(ctx context.Context, p intent.Payload) intent.Decision
}

// Transcriber transcribes audio files. *service.STT implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, modelID, audioPath string, params map[string]any) (service.Transcript, error)
}

// Deps are the services exposed over HTTP.
type Deps struct {
	Intent  IntentResolver
	STT     Transcriber
	Models  service.Models
	Version string
}

// Server is the service mode HTTP API.
type Server struct {
	api     huma.API
	handler http.Handler
}

// New builds the HTTP API on a net/http ServeMux.
func New(deps Deps) *Server {
	mux := http.NewServeMux()

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	api := humago.New(mux, huma.DefaultConfig("echocode", version))
	Register(api, deps)

	return &Server{
		api:     api,
		handler: RequestID(mux),
	}
}

// Register adds every operation to api.
func Register(api huma.API, deps Deps) {
	NewHealthHandler(api)
	NewIntentHandler(api, deps.Intent)
	NewSTTHandler(api, deps.STT)
	NewModelsHandler(api, deps.Models)
}

// API returns the underlying huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Handler returns the root handler, request id middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on l until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server: shutdown: %w", err)
	}

	slog.Info("HTTP server stopped")
	return nil
}
