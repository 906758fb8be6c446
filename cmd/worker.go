package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/emrchat/internal/fhir"
	"github.com/user/emrchat/internal/logging"
	"github.com/user/emrchat/internal/tools"
	"github.com/user/emrchat/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var persistent bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute tool calls read as JSON-RPC from stdin",
		Long: `Run the tool worker.

By default one JSON-RPC "tools/call" request is read from stdin. The result
is written to stdout with exit status 0; an error response is written to
stderr with exit status 1.

With --persistent the worker answers one request per input line on stdout
until stdin is closed.`,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), persistent)
		},
	}

	cmd.Flags().BoolVar(&persistent, "persistent", false, "Serve requests line by line until stdin closes")

	return cmd
}

func init() {
	rootCmd.AddCommand(newWorkerCmd())
}

func runWorker(ctx context.Context, persistent bool) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	logger, err := InitLogger(cfg.Logging, LoggerOptions{
		FileName: "worker.log",
		Console:  false,
		Debug:    cfg.Debug,
	})
	if err != nil {
		return err
	}
	logger = logger.With(logging.Int("pid", os.Getpid()))

	records := fhir.NewClient(cfg.FHIR, fhir.WithLogger(logger.Named("fhir")))
	runner := tools.NewExecutor(records, logger.Named("tools"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if persistent {
		logger.Debug("persistent worker started")
		err := worker.ServeLoop(ctx, runner, os.Stdin, os.Stdout)
		_ = logger.Sync()
		return err
	}

	code := worker.ServeOnce(ctx, runner, os.Stdin, os.Stdout, os.Stderr)
	_ = logger.Sync()
	stop()
	os.Exit(code)
	return nil
}
