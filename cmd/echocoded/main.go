// Command echocoded serves intent resolution and speech-to-text over HTTP,
// with gRPC health checks, reloading models when the config file changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ekisa-team/echocode-voice/internal/app"
	"github.com/ekisa-team/echocode-voice/internal/backend"
	"github.com/ekisa-team/echocode-voice/internal/config"
	"github.com/ekisa-team/echocode-voice/internal/model"
	grpcserver "github.com/ekisa-team/echocode-voice/internal/server/grpc"
	httpserver "github.com/ekisa-team/echocode-voice/internal/server/http"
	"github.com/ekisa-team/echocode-voice/internal/service"
	"github.com/ekisa-team/echocode-voice/internal/xfs"
)

var version = "dev"

type options struct {
	configPath string
	schemaPath string
	envFile    string
	logLevel   string
	host       string
	httpPort   int
	grpcPort   int

	configSet bool
	changed   map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{changed: map[string]bool{}}

	fs := pflag.NewFlagSet("echocoded", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile(), "Path to config file")
	fs.StringVar(&opts.schemaPath, "schema", "", "Path to schema file (defaults to the embedded schema)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.host, "host", "", "Host to listen on")
	fs.IntVar(&opts.httpPort, "http-port", config.DefaultHTTPPort, "HTTP port to listen on")
	fs.IntVar(&opts.grpcPort, "grpc-port", config.DefaultGRPCPort, "gRPC port to listen on, 0 disables gRPC")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *pflag.Flag) { opts.changed[f.Name] = true })
	opts.configSet = opts.changed["config"]

	return opts, nil
}

// applyFlags overrides the server section with flags given on the command line.
func (o *options) applyFlags(cfg *config.Config) {
	if o.changed["host"] {
		cfg.Server.Host = o.host
	}
	if o.changed["http-port"] {
		cfg.Server.HTTPPort = o.httpPort
	}
	if o.changed["grpc-port"] {
		cfg.Server.GRPCPort = o.grpcPort
	}
}

type daemon struct {
	opts     *options
	manager  *model.Manager
	servers  *backend.ServerManager
	backends *backend.Registry
	intent   *service.Intent
	stt      *service.STT
	grpc     *grpcserver.Server
	watcher  *config.Watcher
	static   *config.Config

	// mu guards the services against reloads racing startup.
	mu sync.Mutex
}

func (d *daemon) snapshot() *config.Config {
	if d.watcher != nil {
		return d.watcher.Snapshot()
	}
	return d.static
}

// load reads the config, watching it when the file exists.
func (d *daemon) load() error {
	if !xfs.Exists(d.opts.configPath) {
		if d.opts.configSet {
			return fmt.Errorf("config file %s does not exist", d.opts.configPath)
		}

		cfg, err := config.LoadOrDefault("", d.opts.schemaPath, false)
		if err != nil {
			return err
		}
		d.opts.applyFlags(cfg)
		d.static = cfg

		slog.Info("No config file found, using defaults", "config", d.opts.configPath)
		return nil
	}

	watcher, err := config.NewWatcher(d.opts.configPath, d.opts.schemaPath, d.onReload)
	if err != nil {
		return err
	}
	d.opts.applyFlags(watcher.Snapshot())
	d.watcher = watcher

	slog.Info("Config loaded successfully", "config", d.opts.configPath)
	return nil
}

func (d *daemon) onReload(cfg *config.Config, err error) {
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.intent == nil {
		slog.Warn("Config changed during startup, restart to apply it")
		return
	}

	if err := d.manager.LoadModelsFromConfig(context.Background(), cfg); err != nil {
		slog.Error("Failed to load models from config", "error", err)
	}
	if err := d.intent.Reset(); err != nil {
		slog.Warn("Failed to release previous embedding providers", "error", err)
	}

	d.updateHealth(cfg)
	slog.Info("Config reloaded", "models", len(d.manager.Registry().List()))
}

// updateHealth reports a service as not serving when its model failed to load.
func (d *daemon) updateHealth(cfg *config.Config) {
	if d.grpc == nil {
		return
	}

	healthy := func(id string, err error) bool {
		if err != nil {
			return false
		}
		mi, ok := d.manager.Registry().Get(id)
		return ok && mi.Status() != model.ModelStatusFailed
	}

	d.grpc.SetServing(grpcserver.IntentService, healthy(cfg.IntentModelID()))
	d.grpc.SetServing(grpcserver.STTService, healthy(cfg.STTModelID()))
}

func (d *daemon) close() {
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			slog.Warn("Failed to close config watcher", "error", err)
		}
	}
	if d.intent != nil {
		if err := d.intent.Close(); err != nil {
			slog.Warn("Failed to close intent service", "error", err)
		}
	}
	if d.backends != nil {
		if err := d.backends.Close(); err != nil {
			slog.Warn("Failed to close backends", "error", err)
		}
	}
	d.servers.StopAll()
}

// start builds the services from the current config.
func (d *daemon) start(ctx context.Context) (*config.Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.snapshot()

	logger, err := app.NewLogger(cfg, d.opts.logLevel, slog.LevelInfo)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if err := d.manager.LoadModelsFromConfig(ctx, cfg); err != nil {
		slog.Error("Failed to load models from config", "error", err)
	}

	d.backends, err = app.NewBackends(cfg, d.servers)
	if err != nil {
		return nil, err
	}
	d.intent = service.NewIntent(d.backends, d.manager, d.snapshot)
	d.stt = service.NewSTT(d.backends, d.manager, d.snapshot)

	if cfg.Server.GRPCPort > 0 {
		d.grpc = grpcserver.New()
		d.updateHealth(cfg)
	}

	return cfg, nil
}

func run(ctx context.Context, opts *options) error {
	if err := app.LoadDotEnv(opts.envFile); err != nil {
		return err
	}

	d := &daemon{
		opts:    opts,
		manager: model.NewManager(),
		servers: backend.NewServerManager(),
	}
	defer d.close()

	if err := d.load(); err != nil {
		return err
	}

	cfg, err := d.start(ctx)
	if err != nil {
		return err
	}

	httpListener, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort)))
	if err != nil {
		return fmt.Errorf("failed to listen for HTTP: %w", err)
	}

	var grpcListener net.Listener
	if d.grpc != nil {
		grpcListener, err = net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort)))
		if err != nil {
			httpListener.Close()
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
	}

	httpServer := httpserver.New(httpserver.Deps{
		Intent:  d.intent,
		STT:     d.stt,
		Models:  d.manager,
		Version: version,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	serve := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// One server stopping brings the other down too.
			cancel()
		}()
	}

	serve(func(ctx context.Context) error { return httpServer.Serve(ctx, httpListener) })
	if grpcListener != nil {
		serve(func(ctx context.Context) error { return d.grpc.Serve(ctx, grpcListener) })
	}

	wg.Wait()
	return errors.Join(errs...)
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("Invalid arguments", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		stop()
		slog.Error("echocoded stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("echocoded stopped")
}
