//go:build !whisper

package whispercpp

import "github.com/ekisa-team/echocode-voice/internal/backend"

// NewBackend reports that the binding was not compiled in.
func NewBackend(Options) (backend.Backend, error) {
	return nil, backend.ErrNotCompiled
}
