package sentence

import "errors"

// Error definitions for the sentence package.
var (
	ErrWorker       = errors.New("sentence: worker error")
	ErrWorkerExited = errors.New("sentence: worker exited")
	ErrClosed       = errors.New("sentence: backend closed")
)

func isWorkerReported(err error) bool {
	return errors.Is(err, ErrWorker)
}
