// Package pyruntime prepares the Python interpreter and scripts used by
// Python-backed workers.
package pyruntime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ekisa-team/echocode-voice/internal/backend"
)

const (
	venvDir          = "venv"
	scriptsDir       = "python"
	requirementsFile = ".requirements"
	installTimeout   = 15 * time.Minute
)

// Options configures a Runtime.
type Options struct {
	// Python is the base interpreter, used directly when Venv is false.
	Python string

	// Dir holds extracted scripts and the virtual environment.
	Dir string

	// Venv creates a virtual environment under Dir and installs requirements into it.
	Venv bool

	// Runner runs setup commands. Defaults to backend.ExecCommandRunner.
	Runner backend.CommandRunner
}

// Runtime is a Python installation shared by the workers of one process.
type Runtime struct {
	opts Options
	mu   sync.Mutex
}

// New creates a Runtime.
func New(opts Options) *Runtime {
	if opts.Runner == nil {
		opts.Runner = backend.ExecCommandRunner{}
	}

	return &Runtime{opts: opts}
}

// Runner returns the command runner workers should be started with.
func (r *Runtime) Runner() backend.CommandRunner {
	return r.opts.Runner
}

// WriteScript extracts an embedded script into the runtime directory.
// The file is only rewritten when its content changed.
func (r *Runtime) WriteScript(name string, content []byte) (string, error) {
	dir := filepath.Join(r.opts.Dir, scriptsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pyruntime: failed to create scripts directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, content) {
		return path, nil
	}

	slog.Debug("Extracting embedded Python script", "path", path)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("pyruntime: failed to write script: %w", err)
	}

	return path, nil
}

// Interpreter returns the interpreter to start workers with. With Venv set, the
// virtual environment is created on first use and requirements are installed
// unless the recorded set already covers them.
func (r *Runtime) Interpreter(ctx context.Context, requirements []string) (string, error) {
	if !r.opts.Venv {
		return r.opts.Python, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	venv := filepath.Join(r.opts.Dir, venvDir)
	python := venvPython(venv)

	if _, err := os.Stat(python); err != nil {
		slog.Info("Creating Python virtual environment", "path", venv)

		exec := backend.NewExecutorWithRunner(r.opts.Python, installTimeout, r.opts.Runner)
		if _, stderr, err := exec.Execute(ctx, []string{"-m", "venv", venv}, nil); err != nil {
			return "", fmt.Errorf("pyruntime: failed to create venv: %w: %s", err, strings.TrimSpace(string(stderr)))
		}
	}

	missing := r.missingRequirements(requirements)
	if len(missing) == 0 {
		return python, nil
	}

	slog.Info("Installing Python requirements", "requirements", missing)

	exec := backend.NewExecutorWithRunner(python, installTimeout, r.opts.Runner)
	args := append([]string{"-m", "pip", "install", "--quiet"}, missing...)
	if _, stderr, err := exec.Execute(ctx, args, nil); err != nil {
		return "", fmt.Errorf("pyruntime: failed to install requirements: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	if err := r.recordRequirements(missing); err != nil {
		slog.Warn("Failed to record installed requirements", "error", err)
	}

	return python, nil
}

func (r *Runtime) missingRequirements(requirements []string) []string {
	installed := r.installedRequirements()

	var missing []string
	for _, req := range requirements {
		if !slices.Contains(installed, req) {
			missing = append(missing, req)
		}
	}

	return missing
}

func (r *Runtime) installedRequirements() []string {
	data, err := os.ReadFile(filepath.Join(r.opts.Dir, venvDir, requirementsFile))
	if err != nil {
		return nil
	}

	return strings.Fields(string(data))
}

func (r *Runtime) recordRequirements(added []string) error {
	all := append(r.installedRequirements(), added...)
	path := filepath.Join(r.opts.Dir, venvDir, requirementsFile)

	return os.WriteFile(path, []byte(strings.Join(all, "\n")+"\n"), 0o644)
}

func venvPython(venv string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venv, "Scripts", "python.exe")
	}

	return filepath.Join(venv, "bin", "python")
}
