package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/config"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ECHOCODE_TEST_DOTENV=from-file\nECHOCODE_TEST_KEEP=from-file\n"), 0o644))

	t.Setenv("ECHOCODE_TEST_KEEP", "from-env")
	t.Setenv("ECHOCODE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("ECHOCODE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("ECHOCODE_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("ECHOCODE_TEST_KEEP"))
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()

	l, err := NewLogger(cfg, "", slog.LevelWarn)
	require.NoError(t, err)
	assert.False(t, l.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, l.Enabled(t.Context(), slog.LevelWarn))

	cfg.Logging.Level = "info"
	l, err = NewLogger(cfg, "", slog.LevelWarn)
	require.NoError(t, err)
	assert.True(t, l.Enabled(t.Context(), slog.LevelInfo))

	l, err = NewLogger(cfg, "debug", slog.LevelWarn)
	require.NoError(t, err)
	assert.True(t, l.Enabled(t.Context(), slog.LevelDebug))

	_, err = NewLogger(cfg, "loud", slog.LevelWarn)
	assert.Error(t, err)
}

func TestNewBackends(t *testing.T) {
	cfg := config.Default()
	servers := backend.NewServerManager()
	defer servers.StopAll()

	registry, err := NewBackends(cfg, servers)
	require.NoError(t, err)
	defer registry.Close()

	for _, p := range []backend.BackendProvider{
		backend.BackendProviderSentenceTransformers,
		backend.BackendProviderOllama,
		backend.BackendProviderOpenAI,
		backend.BackendProviderLlamaCPP,
		backend.BackendProviderFasterWhisper,
		backend.BackendProviderWhisperCPP,
	} {
		_, ok := registry.Get(p)
		assert.True(t, ok, "provider %s", p)
	}
}
