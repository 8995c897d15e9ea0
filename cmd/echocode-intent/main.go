// Command echocode-intent resolves one utterance against a command catalog.
// It reads a JSON payload on stdin and always writes exactly one JSON line to
// stdout, exiting 0 even on failure.
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
	"github.com/ekisa-team/echocode-voice/internal/intent"
	"github.com/ekisa-team/echocode-voice/internal/model"
	"github.com/ekisa-team/echocode-voice/internal/service"
)

type options struct {
	configPath string
	schemaPath string
	envFile    string
	modelID    string
	logLevel   string
	threshold  float64
	timeout    time.Duration

	thresholdSet bool
	timeoutSet   bool
	configSet    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := pflag.NewFlagSet("echocode-intent", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile(), "Path to config file")
	fs.StringVar(&opts.schemaPath, "schema", "", "Path to schema file (defaults to the embedded schema)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")
	fs.StringVarP(&opts.modelID, "model", "m", "", "Model ID from the config, or an embedding model name")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.Float64VarP(&opts.threshold, "threshold", "t", intent.DefaultThreshold, "Similarity a command must exceed to be accepted")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Timeout for model invocation")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.thresholdSet = fs.Changed("threshold")
	opts.timeoutSet = fs.Changed("timeout")
	opts.configSet = fs.Changed("config")

	return opts, nil
}

// loadConfig loads the config file and applies flag overrides. A model name
// that is not a configured ID becomes an ad hoc sentence-transformers model.
func loadConfig(opts *options) (*config.Config, error) {
	if err := app.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrDefault(opts.configPath, opts.schemaPath, opts.configSet)
	if err != nil {
		return nil, err
	}

	if opts.modelID != "" {
		cfg.UseIntentModel(opts.modelID)
	}
	if opts.thresholdSet {
		cfg.Services.Intent.Threshold = opts.threshold
	}
	if opts.timeoutSet {
		cfg.Services.Intent.Timeout = opts.timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// run resolves the payload on stdin. Every failure is folded into the decision.
func run(ctx context.Context, opts *options, stdin io.Reader) intent.Decision {
	p, ok, err := intent.Decode(stdin)
	switch {
	case err != nil:
		return intent.Failed(err)
	case !ok, len(p.Commands) == 0:
		return intent.NoMatch()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return intent.Failed(err)
	}

	logger, err := app.NewLogger(cfg, opts.logLevel, slog.LevelWarn)
	if err != nil {
		return intent.Failed(err)
	}
	slog.SetDefault(logger)

	modelID, err := cfg.IntentModelID()
	if err != nil {
		return intent.Failed(err)
	}

	mi, err := model.NewManager().LoadModel(ctx, cfg, modelID)
	if err != nil {
		return intent.Failed(err)
	}

	servers := backend.NewServerManager()
	defer servers.StopAll()

	backends, err := app.NewBackends(cfg, servers)
	if err != nil {
		return intent.Failed(err)
	}
	defer backends.Close()

	svc := service.NewIntent(backends, service.NewStaticModels(mi), service.StaticSnapshot(cfg))
	defer svc.Close()

	return svc.Resolve(ctx, p)
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var d intent.Decision
	if err != nil {
		d = intent.Failed(fmt.Errorf("%w: %w", intent.ErrInvalidInput, err))
	} else {
		d = run(ctx, opts, os.Stdin)
	}

	if err := intent.Write(os.Stdout, d); err != nil {
		slog.Error("Failed to write decision", "error", err)
	}
}
