package sentence

import (
	"context"
	"sync"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/embedding"
)

// pool holds up to size workers for one model. A nil slot is started on demand,
// so a worker that fails is replaced on the next request.
type pool struct {
	slots  chan *worker
	start  func(ctx context.Context) (*worker, error)
	mu     sync.Mutex
	live   map[*worker]struct{}
	closed bool
}

func newPool(size int, runner backend.CommandRunner, python, script string, cfg workerConfig) *pool {
	if size < 1 {
		size = 1
	}

	p := &pool{
		slots: make(chan *worker, size),
		live:  map[*worker]struct{}{},
	}
	p.start = func(ctx context.Context) (*worker, error) {
		return startWorker(ctx, runner, python, script, cfg)
	}

	for range size {
		p.slots <- nil
	}

	return p
}

func (p *pool) embed(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	var w *worker
	select {
	case w = <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.isClosed() {
		p.slots <- w
		return nil, ErrClosed
	}

	if w == nil {
		var err error
		if w, err = p.start(ctx); err != nil {
			p.slots <- nil
			return nil, err
		}
		p.track(w, true)
	}

	vectors, err := w.embed(ctx, texts)
	if err != nil {
		// Model errors leave the stream in sync. Everything else retires the worker.
		if !isWorkerReported(err) {
			w.close()
			p.track(w, false)
			w = nil
		}
	}

	p.slots <- w
	return vectors, err
}

func (p *pool) track(w *worker, add bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if add {
		p.live[w] = struct{}{}
	} else {
		delete(p.live, w)
	}
}

func (p *pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *pool) close() {
	p.mu.Lock()
	p.closed = true
	live := p.live
	p.live = map[*worker]struct{}{}
	p.mu.Unlock()

	for w := range live {
		w.close()
	}
}
