package source

import (
	"context"
	"fmt"

	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/xfs"
)

// LocalDownloader resolves a model folder that already exists on disk.
type LocalDownloader struct{}

// Download resolves the local path. Nothing is copied.
func (LocalDownloader) Download(_ context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error) {
	src, err := modelConfig.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get model source: %w", err)
	}

	local, ok := src.(config.LocalSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	path := xfs.ResolveRelative(targetDir, local.Path)
	if !xfs.Exists(path) {
		return "", false, fmt.Errorf("model not found at %s", path)
	}

	return path, true, nil
}
