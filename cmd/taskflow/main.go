// Command taskflow runs dependency-ordered workflows defined in YAML or JSON files.
//
// Usage:
//
//	taskflow [--config PATH] [--json] <command> [flags]
//
// Commands:
//
//	run        Execute a workflow definition
//	validate   Check a definition without running it
//	history    List stored workflows or show one
//	executors  List the configured executors
//	config     Manage configuration files
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/telemetry"
)

// version is set through ldflags at build time.
var version = "dev"

// errNotCompleted marks a run whose workflow ended in a status other than completed.
var errNotCompleted = errors.New("workflow did not complete")

// app holds the global flags shared by every command.
type app struct {
	configPath string
	jsonOutput bool
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNotCompleted) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "taskflow: dependency-ordered task scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ~/.taskflow/config.json merged with .taskflow/config.json)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default warn, or $"+telemetry.EnvLogLevel+")")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: json or text (default json, or $"+telemetry.EnvLogFormat+")")

	root.AddCommand(
		a.runCmd(),
		a.validateCmd(),
		a.historyCmd(),
		a.executorsCmd(),
		a.configCmd(),
	)
	return root
}

// loadConfig reads --config on top of the defaults, or the conventional
// global and project files when the flag is unset.
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.Load("", a.configPath)
	}
	return config.LoadDefault()
}

func (a *app) logger() *slog.Logger {
	level := a.logLevel
	if level == "" && os.Getenv(telemetry.EnvLogLevel) == "" {
		level = "warn" // Keep the progress view readable
	}
	return telemetry.SetupLogger(a.stderr, level, a.logFormat)
}

func (a *app) output() *output {
	return &output{jsonMode: a.jsonOutput, w: a.stdout, errW: a.stderr}
}
