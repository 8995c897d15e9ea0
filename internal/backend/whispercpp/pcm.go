package whispercpp

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// SampleRate is the only rate whisper.cpp accepts.
const SampleRate = 16000

// Errors returned by DecodeWAV.
var (
	ErrInvalidWAV = errors.New("whispercpp: not a valid wav file")
	ErrSampleRate = errors.New("whispercpp: wav must be 16 kHz")
)

// DecodeWAV reads a PCM WAV file into mono float32 samples in [-1, 1].
// Multi-channel audio is averaged down to one channel.
func DecodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("whispercpp: failed to decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrInvalidWAV
	}

	if buf.Format.SampleRate != SampleRate {
		return nil, fmt.Errorf("%w: got %d Hz", ErrSampleRate, buf.Format.SampleRate)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	samples := make([]float32, len(buf.Data)/channels)
	for i := range samples {
		var sum float32
		for c := range channels {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return samples, nil
}
