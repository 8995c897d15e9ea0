package pyruntime

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	calls [][]string
	// onRun lets a test create the files a real command would.
	onRun func(name string, args []string) error
}

func (r *recordingRunner) Run(_ context.Context, name string, args []string, _ io.Reader) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.onRun != nil {
		return nil, nil, r.onRun(name, args)
	}
	return nil, nil, nil
}

func (r *recordingRunner) Start(context.Context, string, []string, io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
	return nil, nil, nil, errors.New("not supported")
}

func TestWriteScript(t *testing.T) {
	rt := New(Options{Python: "python3", Dir: t.TempDir()})

	path, err := rt.WriteScript("worker.py", []byte("print(1)\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(data))

	_, err = rt.WriteScript("worker.py", []byte("print(2)\n"))
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print(2)\n", string(data))
}

func TestInterpreter_NoVenv(t *testing.T) {
	runner := &recordingRunner{}
	rt := New(Options{Python: "/usr/bin/python3", Dir: t.TempDir(), Runner: runner})

	python, err := rt.Interpreter(context.Background(), []string{"numpy"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3", python)
	assert.Empty(t, runner.calls)
}

func TestInterpreter_Venv(t *testing.T) {
	dir := t.TempDir()
	venv := filepath.Join(dir, venvDir)

	runner := &recordingRunner{}
	runner.onRun = func(_ string, args []string) error {
		if args[0] == "-m" && args[1] == "venv" {
			python := venvPython(venv)
			require.NoError(t, os.MkdirAll(filepath.Dir(python), 0o755))
			require.NoError(t, os.WriteFile(python, nil, 0o755))
		}
		return nil
	}

	rt := New(Options{Python: "python3", Dir: dir, Venv: true, Runner: runner})

	python, err := rt.Interpreter(context.Background(), []string{"sentence-transformers", "numpy"})
	require.NoError(t, err)
	assert.Equal(t, venvPython(venv), python)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"python3", "-m", "venv", venv}, runner.calls[0])
	assert.Equal(t, []string{python, "-m", "pip", "install", "--quiet", "sentence-transformers", "numpy"}, runner.calls[1])

	// Already installed: no commands.
	_, err = rt.Interpreter(context.Background(), []string{"numpy"})
	require.NoError(t, err)
	assert.Len(t, runner.calls, 2)

	// A new requirement only installs the difference.
	_, err = rt.Interpreter(context.Background(), []string{"numpy", "faster-whisper"})
	require.NoError(t, err)
	require.Len(t, runner.calls, 3)
	assert.Equal(t, []string{python, "-m", "pip", "install", "--quiet", "faster-whisper"}, runner.calls[2])
}

func TestInterpreter_VenvFailure(t *testing.T) {
	runner := &recordingRunner{onRun: func(string, []string) error { return errors.New("no venv module") }}
	rt := New(Options{Python: "python3", Dir: t.TempDir(), Venv: true, Runner: runner})

	_, err := rt.Interpreter(context.Background(), nil)
	assert.ErrorContains(t, err, "failed to create venv")
}
