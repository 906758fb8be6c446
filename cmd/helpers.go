package cmd

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/logging"
)

// LoggerOptions selects where a command logs
type LoggerOptions struct {
	// FileName is the log file name inside the configured log directory
	FileName string

	// Console enables the console core. The worker keeps it off so stderr
	// only ever carries protocol errors.
	Console bool

	// Debug enables caller information
	Debug bool

	// Verbose lowers the console level to debug
	Verbose bool
}

// InitLogger creates a configured logger for CLI commands.
// The caller is responsible for calling logger.Sync() when done.
func InitLogger(cfg config.LoggingConfig, opts LoggerOptions) (*logging.Logger, error) {
	consoleLevel := logging.LevelFromString(cfg.ConsoleLevel)
	if opts.Verbose {
		consoleLevel = logging.LevelFromString("debug")
	}

	logCfg := &logging.Config{
		LogDir:         cfg.LogDir,
		FileName:       opts.FileName,
		FileLevel:      logging.LevelFromString(cfg.FileLevel),
		ConsoleLevel:   consoleLevel,
		EnableCaller:   opts.Debug,
		ConsoleEnabled: opts.Console,
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

// loadConfig loads configuration honoring the persistent flags
func loadConfig(overrides map[string]any) (*config.Config, error) {
	if debugFlag {
		if overrides == nil {
			overrides = map[string]any{}
		}
		overrides["debug"] = true
	}
	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		Overrides:  overrides,
	})
}

type userMessager interface {
	GetUserMessage() string
}

type exitCoder interface {
	GetExitCode() errors.ExitCode
}

// HandleCommandError writes a user-friendly message for err to w and
// returns err unchanged.
func HandleCommandError(err error, w io.Writer) error {
	if err == nil {
		return nil
	}

	fmt.Fprintln(w, userMessage(err))
	return err
}

func userMessage(err error) string {
	var um userMessager
	if stderrors.As(err, &um) {
		return um.GetUserMessage()
	}
	return fmt.Sprintf("Error: %v", err)
}

func exitCode(err error) int {
	var ec exitCoder
	if stderrors.As(err, &ec) {
		if code := ec.GetExitCode(); code != errors.ExitSuccess {
			return code.Int()
		}
	}
	return errors.ExitGeneralError.Int()
}
