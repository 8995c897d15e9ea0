package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ekisa-team/echocode-voice/internal/config"
)

// ErrUnsupportedSource is returned for source types without a downloader.
var ErrUnsupportedSource = errors.New("source: unsupported source type")

// Downloader makes a model available under a local directory.
type Downloader interface {
	// Download returns the local model path and whether it was already present.
	Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (path string, cached bool, err error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, t config.SourceType) (Downloader, error) {
	switch t {
	case config.SourceTypeHuggingFace:
		return NewHuggingFaceDownloader(), nil
	case config.SourceTypeLocal:
		return LocalDownloader{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, t)
	}
}

// EnsureModelsDirectory creates the models directory if it does not exist.
func EnsureModelsDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("source: failed to create models directory: %w", err)
	}

	return nil
}
