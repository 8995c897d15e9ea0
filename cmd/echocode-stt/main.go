// Command echocode-stt transcribes one audio file and prints the transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/ekisa-team/echocode-voice/internal/app"
	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/model"
	"github.com/ekisa-team/echocode-voice/internal/service"
)

var errUsage = errors.New("usage: echocode-stt [flags] AUDIO_FILE")

type options struct {
	configPath string
	schemaPath string
	envFile    string
	modelID    string
	logLevel   string
	language   string
	device     string
	timeout    time.Duration
	audioPath  string

	configSet  bool
	timeoutSet bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := pflag.NewFlagSet("echocode-stt", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile(), "Path to config file")
	fs.StringVar(&opts.schemaPath, "schema", "", "Path to schema file (defaults to the embedded schema)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")
	fs.StringVarP(&opts.modelID, "model", "m", "", "STT model ID from the config")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVarP(&opts.language, "language", "l", "", "Spoken language, detected when empty")
	fs.StringVar(&opts.device, "device", "", "Inference device (cpu, cuda, auto)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Timeout for the transcription")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 1 {
		return nil, errUsage
	}

	opts.audioPath = fs.Arg(0)
	opts.configSet = fs.Changed("config")
	opts.timeoutSet = fs.Changed("timeout")

	return opts, nil
}

func loadConfig(opts *options) (*config.Config, error) {
	if err := app.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrDefault(opts.configPath, opts.schemaPath, opts.configSet)
	if err != nil {
		return nil, err
	}

	if opts.modelID != "" {
		cfg.Services.STT.Models = []string{opts.modelID}
	}
	if opts.device != "" {
		cfg.Runtime.Device = opts.device
	}
	if opts.timeoutSet {
		cfg.Services.STT.Timeout = opts.timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// run transcribes the audio file and returns the text to print.
func run(ctx context.Context, opts *options) (string, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return "", err
	}

	logger, err := app.NewLogger(cfg, opts.logLevel, slog.LevelWarn)
	if err != nil {
		return "", err
	}
	slog.SetDefault(logger)

	modelID, err := cfg.STTModelID()
	if err != nil {
		return "", err
	}

	mi, err := model.NewManager().LoadModel(ctx, cfg, modelID)
	if err != nil {
		// Reported by the service as a missing model.
		modelConfig := cfg.Models[modelID]
		mi = model.NewModelInstance(&modelConfig, modelID, "")
		mi.SetError(err)
	}

	servers := backend.NewServerManager()
	defer servers.StopAll()

	backends, err := app.NewBackends(cfg, servers)
	if err != nil {
		return "", err
	}
	defer backends.Close()

	var params map[string]any
	if opts.language != "" {
		params = map[string]any{"language": opts.language}
	}

	stt := service.NewSTT(backends, service.NewStaticModels(mi), service.StaticSnapshot(cfg))
	t, err := stt.Transcribe(ctx, modelID, opts.audioPath, params)
	if err != nil {
		return "", err
	}

	return t.Text, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stdout, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	text, err := run(ctx, opts)
	if err != nil {
		stop()
		fmt.Fprintf(os.Stdout, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stdout, text)
}
