package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/dispatcher"
	"github.com/user/emrchat/internal/fhir"
	"github.com/user/emrchat/internal/llm"
	"github.com/user/emrchat/internal/logging"
	"github.com/user/emrchat/internal/orchestrator"
	"github.com/user/emrchat/internal/prompts"
	"github.com/user/emrchat/internal/server"
	"github.com/user/emrchat/internal/telemetry"
	"github.com/user/emrchat/internal/tools"
	"github.com/user/emrchat/internal/worker"
)

type serveOptions struct {
	port       int
	workerMode string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		Long: `Start the HTTP server exposing GET /health and POST /api/chat.

Tool calls are executed by a worker. The worker mode decides how:
  process    spawn "emrchat worker" for every call (default)
  pooled     keep persistent "emrchat worker --persistent" processes
  inprocess  run tools inside the server process`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&opts.workerMode, "worker-mode", "", "Worker mode: process, pooled, inprocess")

	return cmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func runServe(ctx context.Context, opts *serveOptions) error {
	overrides := map[string]any{}
	if opts.port != 0 {
		overrides["server.port"] = opts.port
	}
	if opts.workerMode != "" {
		overrides["worker.mode"] = opts.workerMode
	}

	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	if err := cfg.ValidateLLM(); err != nil {
		return err
	}

	logger, err := InitLogger(cfg.Logging, LoggerOptions{
		FileName: "emrchat.log",
		Console:  true,
		Debug:    cfg.Debug,
		Verbose:  verboseFlag,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	traceOut, closeTraceOut, err := traceWriter(cfg)
	if err != nil {
		return err
	}
	defer closeTraceOut()

	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, traceOut, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", logging.Error(err))
		}
	}()

	w, err := buildWorker(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("worker shutdown failed", logging.Error(err))
		}
	}()

	dispatch := dispatcher.New(w,
		dispatcher.WithTimeout(cfg.Worker.Timeout),
		dispatcher.WithLogger(logger.Named("dispatcher")),
	)

	pm, err := prompts.NewManagerWithOverrides(cfg.Chat.PromptsDir)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	if overrides := pm.ListOverrides(); len(overrides) > 0 {
		logger.Info("Using prompt overrides", logging.Strings("prompts", overrides))
	}

	llmClient, err := llm.NewFactory(nil).CreateClient(cfg.LLM)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(llmClient, dispatch, pm, orchestrator.SettingsFrom(cfg), logger.Named("orchestrator"))
	if err != nil {
		return err
	}

	var serverOpts []server.Option
	if cfg.Telemetry.Enabled {
		serverOpts = append(serverOpts, server.WithTracing(cfg.Telemetry.ServiceName))
	}
	srv := server.New(cfg.Server, orch, logger, serverOpts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting emrchat",
		logging.String("addr", cfg.Server.Addr()),
		logging.String("llm_provider", cfg.LLM.Provider),
		logging.String("llm_model", cfg.LLM.Model),
		logging.String("fhir_base_url", cfg.FHIR.BaseURL),
		logging.String("worker_mode", cfg.Worker.Mode))

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// buildWorker creates the worker for the configured mode
func buildWorker(cfg *config.Config, logger *logging.Logger) (worker.Worker, error) {
	workerLogger := logger.Named("worker")
	opts := []worker.Option{
		worker.WithTimeout(cfg.Worker.Timeout),
		worker.WithLogger(workerLogger),
	}

	switch cfg.Worker.Mode {
	case config.WorkerModeInProcess:
		records := fhir.NewClient(cfg.FHIR, fhir.WithLogger(logger.Named("fhir")))
		return worker.NewInProcessWorker(tools.NewExecutor(records, workerLogger)), nil

	case config.WorkerModePooled:
		command, args, err := workerCommand(cfg.Worker, true)
		if err != nil {
			return nil, err
		}
		return worker.NewPooledWorker(command, args, cfg.Worker.GetPoolSize(), opts...), nil

	default:
		command, args, err := workerCommand(cfg.Worker, false)
		if err != nil {
			return nil, err
		}
		return worker.NewProcessWorker(command, args, opts...), nil
	}
}

// workerCommand resolves the worker executable. An empty command means this
// binary's own worker subcommand.
func workerCommand(cfg config.WorkerConfig, persistent bool) (string, []string, error) {
	if cfg.Command != "" {
		return cfg.Command, cfg.Args, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("failed to locate executable for worker: %w", err)
	}

	args := []string{"worker"}
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	if persistent {
		args = append(args, "--persistent")
	}
	return exe, args, nil
}

// traceWriter opens the span output file next to the logs
func traceWriter(cfg *config.Config) (io.Writer, func(), error) {
	if !cfg.Telemetry.Enabled || cfg.Logging.LogDir == "" {
		return os.Stderr, func() {}, nil
	}
	if err := os.MkdirAll(cfg.Logging.LogDir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(cfg.Logging.LogDir, "traces.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
