// Package main is the entry point for the QOTD server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	showVersion bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "qotd: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run is main without the process exit. It returns when ctx is done or
// the server fails.
func run(ctx context.Context, args []string, lookup config.LookupFunc, stdout io.Writer) error {
	flags, err := parseFlags(args, lookup)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if flags.showVersion {
		printVersion(stdout)
		return nil
	}

	bootLogger, err := observability.NewLogger(observability.DefaultLogConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: flags.configPath,
		EnvFile:    flags.envFile,
		Lookup:     lookup,
		Logger:     bootLogger,
	})
	if err != nil {
		bootLogger.Error("invalid configuration", observability.Error(err))
		_ = bootLogger.Sync()
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting qotd",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("settings", cfg.String()),
	)

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return app.serve(ctx)
}

// parseFlags parses command line flags. The config path falls back to
// QOTD_CONFIG.
func parseFlags(args []string, lookup config.LookupFunc) (cliFlags, error) {
	fs := flag.NewFlagSet("qotd", flag.ContinueOnError)

	configPath := fs.String("config", getEnvOrDefault(lookup, config.EnvConfig, ""),
		"Path to YAML configuration file")
	envFile := fs.String("env-file", ".env", "Path to .env file, ignored when missing")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if fs.NArg() > 0 {
		return cliFlags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		showVersion: *showVersion,
	}, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "qotd version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// initLogger builds the process logger from the loaded configuration.
func initLogger(cfg *config.Config) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	observability.SetGlobalLogger(logger)
	return logger, nil
}
