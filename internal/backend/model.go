package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Model file patterns searched inside downloaded model folders.
const (
	GGMLModelPattern = "ggml-*.bin"
	GGUFModelPattern = "*.gguf"
)

// ModelLocator is an optional interface for backends that can locate
// the actual model file to load or execute.
type ModelLocator interface {
	// ResolveModelPath resolves the real model path inside the base downloaded directory.
	ResolveModelPath(basePath string) (string, error)
}

// ResolveModelPath asks b to locate the model file when it implements
// ModelLocator, and returns basePath unchanged otherwise.
func ResolveModelPath(b Backend, basePath string) (string, error) {
	if locator, ok := b.(ModelLocator); ok {
		return locator.ResolveModelPath(basePath)
	}

	return basePath, nil
}

// FindModelFile returns basePath when it names a file. When it names a
// directory, it returns the lexically first entry matching pattern.
func FindModelFile(basePath, pattern string) (string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelFileNotFound, basePath)
	}
	if !info.IsDir() {
		return basePath, nil
	}

	matches, err := filepath.Glob(filepath.Join(basePath, pattern))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("%w: no %s file in %s", ErrModelFileNotFound, pattern, basePath)
	}

	sort.Strings(matches)
	return matches[0], nil
}
