package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"filedownloader/internal/api"
	"filedownloader/internal/batch"
	"filedownloader/internal/command"
	"filedownloader/internal/config"
	"filedownloader/internal/download"
	"filedownloader/internal/file"
	"filedownloader/internal/metrics"
	"filedownloader/internal/policy"
)

// version is overridden at build time via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

type options struct {
	configPath string
	envFile    string
	port       int
}

type application struct {
	cfg      config.Config
	registry *prometheus.Registry
	router   *command.Router
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.DefaultContextLogger = &log.Logger

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("filedownloader failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	runStdio := func(cmd *cobra.Command, _ []string) error {
		app, err := buildApplication(opts)
		if err != nil {
			return err
		}
		return app.router.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	}

	root := &cobra.Command{
		Use:           "filedownloader",
		Short:         "Download files from allowed hosts into local directories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStdio,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to a dotenv file")

	run := &cobra.Command{
		Use:   "run",
		Short: "Read JSON commands from stdin, one per line, and write one JSON response per command",
		Args:  cobra.NoArgs,
		RunE:  runStdio,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := buildApplication(opts)
			if err != nil {
				return err
			}
			if opts.port > 0 {
				app.cfg.Port = opts.port
			}
			return serveHTTP(app)
		},
	}
	serve.Flags().IntVar(&opts.port, "port", 0, "HTTP port, overrides HTTP_PORT")

	root.AddCommand(run, serve)
	return root
}

func buildApplication(opts *options) (*application, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	limits := cfg.Limits()
	downloader := download.New(policy.NewValidator(cfg.AllowedDomains), download.Options{
		Limits:    limits,
		Overwrite: cfg.OverwriteExistingFiles,
		Sniff:     cfg.ContentSniffing,
		UserAgent: cfg.UserAgent,
		Metrics:   m,
	})
	resolver := file.NewResolver(cfg.Directories, cfg.AutoCreateDirectories)
	coordinator := batch.NewCoordinator(downloader, resolver, limits, m)

	log.Debug().
		Int64("max_file_size", limits.MaxFileSize).
		Dur("download_timeout", limits.DownloadTimeout).
		Int("max_concurrent", limits.MaxConcurrent).
		Int("max_batch_size", limits.MaxBatchSize).
		Strs("allowed_domains", cfg.AllowedDomains).
		Msg("configuration loaded")

	return &application{
		cfg:      cfg,
		registry: registry,
		router:   command.NewRouter(downloader, coordinator, resolver),
	}, nil
}

func serveHTTP(app *application) error {
	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	engine := api.NewEngine()
	api.NewAPI(app.router, app.registry, app.cfg.MaxInflightRequests).RegisterRoutes(engine)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	srv := newHTTPServer(baseCtx, app.cfg.Port, engine, readHeaderTimeout)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-waitForShutdownSignal():
	}

	gracefulShutdown(srv, baseCancel, shutdownTimeout)
	return nil
}

func newHTTPServer(baseCtx context.Context, port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
}

func waitForShutdownSignal() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	return quit
}

// gracefulShutdown stops accepting requests and waits for running commands.
// Transfers still running at the deadline are cancelled.
func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, timeout time.Duration) {
	log.Info().Msg("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("commands did not finish before timeout, cancelling transfers")
		cancelBase()
		_ = srv.Close()
		return
	}
	log.Info().Msg("server exited cleanly")
}
