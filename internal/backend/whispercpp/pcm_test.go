package whispercpp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, rate, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())

	return path
}

func TestDecodeWAV_Mono(t *testing.T) {
	path := writeWAV(t, SampleRate, 1, []int{0, 16384, -16384, 32767})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	samples, err := DecodeWAV(f)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.InDelta(t, 0, samples[0], 1e-6)
	assert.InDelta(t, 0.5, samples[1], 1e-6)
	assert.InDelta(t, -0.5, samples[2], 1e-6)
	assert.InDelta(t, 1, samples[3], 1e-3)
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	path := writeWAV(t, SampleRate, 2, []int{16384, 0, -16384, -16384})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	samples, err := DecodeWAV(f)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.25, samples[0], 1e-6)
	assert.InDelta(t, -0.5, samples[1], 1e-6)
}

func TestDecodeWAV_WrongRate(t *testing.T) {
	path := writeWAV(t, 44100, 1, []int{1, 2, 3})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = DecodeWAV(f)
	assert.ErrorIs(t, err, ErrSampleRate)
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 not a wav file at all"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = DecodeWAV(f)
	assert.ErrorIs(t, err, ErrInvalidWAV)
}
