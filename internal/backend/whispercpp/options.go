// Package whispercpp transcribes WAV audio in-process with the whisper.cpp Go
// bindings. Build with -tags whisper and a compiled libwhisper to enable it.
package whispercpp

// Options configures the backend.
type Options struct {
	// Threads used per transcription. Zero uses every CPU.
	Threads int
}
