package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"harmonia/pkg/harmonia"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "harmonia.db"
)

type globalOptions struct {
	logLevel  string
	logFormat string
	storeKind string
	dbPath    string
	runsDir   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "harmonizectl",
		Short:         "Harmonize melodies with a genetic chord search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text|json")
	flags.StringVar(&opts.storeKind, "store", "memory", "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db", defaultDBPath, "sqlite database path")
	flags.StringVar(&opts.runsDir, "runs-dir", defaultRunsDir, "run artifacts directory")

	root.AddCommand(
		newInitCmd(),
		newRunCmd(opts),
		newRunsCmd(opts),
		newShowCmd(opts),
		newTraceCmd(opts),
		newExportCmd(opts),
	)
	return root
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// newClient builds a client from the persistent flags. extra may override
// fields such as the metrics registerer.
func newClient(cmd *cobra.Command, opts *globalOptions, extra func(*harmonia.Options)) (*harmonia.Client, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
	if err != nil {
		return nil, err
	}
	clientOpts := harmonia.Options{
		StoreKind:    opts.storeKind,
		DBPath:       opts.dbPath,
		ArtifactsDir: opts.runsDir,
		ExportsDir:   defaultExportsDir,
		Logger:       logger,
	}
	if extra != nil {
		extra(&clientOpts)
	}
	return harmonia.New(clientOpts)
}
