package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/workdir/artifact"
	"github.com/Norgate-AV/workdir/internal/logger"
	"github.com/Norgate-AV/workdir/internal/version"
)

// runContext holds state shared by the subcommands after startup: the
// resolved settings, the allocator bound to them, and the logger.
type runContext struct {
	cfg      *Config
	settings artifact.Config
	alloc    *artifact.Allocator
	log      logger.LoggerInterface
	exitFunc func(int) // Injectable for testing; defaults to os.Exit
}

// RootCmd is the root command for the workdir CLI application.
var RootCmd = &cobra.Command{
	Use:          "workdir",
	Short:        "workdir - Manage shared artifact directories for test runs",
	Version:      version.GetVersion(),
	Args:         cobra.NoArgs,
	RunE:         Execute,
	SilenceUsage: true, // Don't show usage on runtime errors
}

func init() {
	// Set custom version template to show full version info
	RootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// Add flags
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "enable verbose output")
	RootCmd.PersistentFlags().BoolP("logs", "l", false, "print the current log file to stdout and exit")
	RootCmd.PersistentFlags().StringP("root", "R", "", "override the configured artifact root")
	RootCmd.PersistentFlags().StringP("config", "c", "", "path to a workdir config file")
}

// handleLogsFlag processes the --logs flag and exits if needed
func handleLogsFlag(cfg *Config, exitFunc func(int)) error {
	if !cfg.ShowLogs {
		return nil
	}

	if err := logger.PrintLogFile(nil, logger.LoggerOptions{}); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logPath := logger.GetLogPath(logger.LoggerOptions{})
			fmt.Fprintf(os.Stderr, "Log file does not exist: %s\n", logPath)
			exitFunc(1)
		}

		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		exitFunc(1)
	}

	exitFunc(0)
	return nil // Won't actually reach here due to exitFunc
}

// initializeLogger creates a logger and logs startup information
func initializeLogger(cfg *Config) (logger.LoggerInterface, error) {
	log, err := logger.NewLogger(logger.LoggerOptions{
		Verbose:  cfg.Verbose,
		Compress: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// resolveSettings loads the artifact configuration and applies flag
// overrides on top of it.
func resolveSettings(cfg *Config) (artifact.Config, error) {
	settings, err := artifact.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return artifact.Config{}, err
	}

	if cfg.Root != "" {
		absRoot, err := filepath.Abs(cfg.Root)
		if err != nil {
			return artifact.Config{}, fmt.Errorf("failed to resolve artifact root %s: %w", cfg.Root, err)
		}

		settings.Root = absRoot
	}

	return settings, nil
}

// newRunContext builds the shared context for a subcommand invocation
func newRunContext(cmd *cobra.Command) (*runContext, error) {
	cfg := NewConfigFromFlags(cmd)

	log, err := initializeLogger(cfg)
	if err != nil {
		return nil, err
	}

	settings, err := resolveSettings(cfg)
	if err != nil {
		log.Error("Configuration load failed", slog.Any("error", err))
		log.Close()

		return nil, err
	}

	return &runContext{
		cfg:      cfg,
		settings: settings,
		alloc:    artifact.NewAllocator(settings, log),
		log:      log,
		exitFunc: os.Exit,
	}, nil
}

// setupSignalHandlers installs an interrupt handler so an aborted run still
// flushes the log and exits with the conventional code.
// It captures the runContext in a closure to reach the logger and exit
// function from the signal goroutine.
func setupSignalHandlers(ctx *runContext) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		handleInterrupt(ctx, sig)
	}()
}

// handleInterrupt logs the signal and exits 130. A removal cut short here
// leaves at worst an orphaned lock marker, which the next sweep picks up.
func handleInterrupt(ctx *runContext, sig os.Signal) {
	ctx.log.Info("Interrupt signal received, aborting", slog.Any("signal", sig))
	ctx.log.Close()
	ctx.exitFunc(130)
}

// runWithContext wraps a subcommand body with context setup, signal handling,
// panic recovery, and logger teardown.
func runWithContext(cmd *cobra.Command, fn func(*runContext) error) (err error) {
	ctx, err := newRunContext(cmd)
	if err != nil {
		return err
	}

	defer ctx.log.Close()

	setupSignalHandlers(ctx)

	ctx.log.Debug("Starting workdir",
		slog.String("command", cmd.Name()),
		slog.String("root", ctx.settings.Root),
		slog.Bool("verbose", ctx.cfg.Verbose),
	)

	// Recover from panics and log them
	defer func() {
		if r := recover(); r != nil {
			ctx.log.Error("PANIC RECOVERED",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)

			fmt.Fprintf(os.Stderr, "\n*** PANIC: %v ***\n", r)
			fmt.Fprintf(os.Stderr, "Check log file for details\n")

			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	return fn(ctx)
}

// displayWarnings prints a numbered list of non-fatal failures
func displayWarnings(log logger.LoggerInterface, warnings []error) {
	if len(warnings) == 0 {
		return
	}

	log.Warn("Completed with warnings", slog.Int("count", len(warnings)))

	for i, warn := range warnings {
		log.Info(fmt.Sprintf("  %d. %v", i+1, warn))
	}
}

// Execute runs the root command: it handles the --logs convenience flag and
// otherwise prints help.
func Execute(cmd *cobra.Command, args []string) error {
	cfg := NewConfigFromFlags(cmd)

	if err := handleLogsFlag(cfg, os.Exit); err != nil {
		return err
	}

	return cmd.Help()
}
