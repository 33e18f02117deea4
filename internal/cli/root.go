// Package cli implements the command-line interface for bizstore.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/bizstore/internal/config"
	"github.com/kilupskalvis/bizstore/internal/core"
)

var (
	logLevel  string
	logFormat string
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	App    *core.App
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.App != nil {
		c.App.Close()
	}
}

// initContext loads config and opens the data-access layer
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	logger := newLogger(cfg, os.Stderr)
	app, err := core.Open(context.Background(), cfg, logger)
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	return &cmdContext{Config: cfg, App: app}
}

// newLogger builds the process logger. Flags win over the [log] section.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	levelName, format := cfg.Log.Level, cfg.Log.Format
	if logLevel != "" {
		levelName = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}

	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:   "bizstore",
	Short: "Resilient business data store",
	Long: `bizstore keeps business records (customers, products, sales, stock,
expenses) reachable when the remote database refuses access. Reads and
writes go to the remote first and fall back to a durable local store on
permission errors. Local state can be backed up, exported and restored.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(prefetchCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
