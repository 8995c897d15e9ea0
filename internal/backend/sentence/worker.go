package sentence

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
)

type workerConfig struct {
	ModelName           string `json:"model_name"`
	Device              string `json:"device"`
	NormalizeEmbeddings bool   `json:"normalize_embeddings"`
}

type readyMessage struct {
	Status       string `json:"status"`
	EmbeddingDim int    `json:"embedding_dim"`
	Error        string `json:"error,omitempty"`
}

type workerResponse struct {
	Embeddings []embedding.Vector `json:"embeddings"`
	Error      string             `json:"error,omitempty"`
}

// worker is one Python process speaking the JSON-lines protocol.
type worker struct {
	id     string
	stdin  *io.PipeWriter
	stdout *bufio.Reader
	wait   func() error
	cancel context.CancelFunc
	dim    int
	once   sync.Once
}

func startWorker(ctx context.Context, runner backend.CommandRunner, python, script string, cfg workerConfig) (*worker, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	stdinR, stdinW := io.Pipe()

	stdout, stderr, wait, err := runner.Start(procCtx, python, []string{script}, stdinR)
	if err != nil {
		cancel()
		stdinW.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	w := &worker{
		id:     uuid.NewString(),
		stdin:  stdinW,
		stdout: bufio.NewReader(stdout),
		wait:   wait,
		cancel: cancel,
	}

	go w.forwardStderr(stderr)

	var ready readyMessage
	if err := w.roundTrip(ctx, cfg, &ready); err != nil {
		w.close()
		return nil, fmt.Errorf("worker startup: %w", err)
	}

	if ready.Status != "ready" {
		w.close()
		if ready.Error != "" {
			return nil, fmt.Errorf("worker startup: %s", ready.Error)
		}
		return nil, fmt.Errorf("unexpected startup status: %q", ready.Status)
	}

	w.dim = ready.EmbeddingDim
	slog.Debug("Embedding worker ready", "worker", w.id, "model", cfg.ModelName, "embedding_dim", w.dim)

	return w, nil
}

func (w *worker) forwardStderr(r io.Reader) {
	if r == nil {
		return
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Debug("Embedding worker stderr", "worker", w.id, "line", scanner.Text())
	}
}

func (w *worker) embed(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	var resp workerResponse
	if err := w.roundTrip(ctx, embedding.WireRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWorker, resp.Error)
	}

	return resp.Embeddings, nil
}

// roundTrip writes one request line and decodes one response line. When ctx
// ends first the worker is killed, since its stream position is unknown.
func (w *worker) roundTrip(ctx context.Context, req, resp any) error {
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	line = append(line, '\n')

	done := make(chan error, 1)
	go func() {
		if _, err := w.stdin.Write(line); err != nil {
			done <- fmt.Errorf("write request: %w", err)
			return
		}

		reply, err := w.stdout.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrWorkerExited
			}
			done <- fmt.Errorf("read response: %w", err)
			return
		}

		if err := json.Unmarshal(reply, resp); err != nil {
			done <- fmt.Errorf("parse response: %w", err)
			return
		}

		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		w.close()
		return ctx.Err()
	}
}

func (w *worker) close() {
	w.once.Do(func() {
		w.stdin.Close()
		w.cancel()
		if err := w.wait(); err != nil {
			slog.Debug("Embedding worker exited", "worker", w.id, "error", err)
		}
	})
}
