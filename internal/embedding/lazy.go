package embedding

import (
	"context"
	"io"
	"sync"
)

// Lazy is a process-wide provider handle that builds its underlying provider
// on first use. The factory runs at most once; its error is kept and returned
// to every later caller.
type Lazy struct {
	factory func() (Provider, error)
	once    sync.Once
	mu      sync.RWMutex
	p       Provider
	err     error
	closed  bool
}

// NewLazy returns a handle that calls factory on first access.
func NewLazy(factory func() (Provider, error)) *Lazy {
	return &Lazy{factory: factory}
}

// Get returns the underlying provider, initializing it if needed.
func (l *Lazy) Get() (Provider, error) {
	l.once.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.closed {
			l.err = ErrClosed
			return
		}
		l.p, l.err = l.factory()
	})

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrClosed
	}

	return l.p, l.err
}

// Initialized reports whether the factory has already run successfully.
func (l *Lazy) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.p != nil
}

// Embed implements Provider. The underlying provider stays open until the call
// returns.
func (l *Lazy) Embed(ctx context.Context, texts ...string) ([]Vector, error) {
	p, err := l.Get()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrClosed
	}

	return p.Embed(ctx, texts...)
}

// Close closes the underlying provider if it was built and implements io.Closer.
// It waits for running Embed calls to finish first.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if c, ok := l.p.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
