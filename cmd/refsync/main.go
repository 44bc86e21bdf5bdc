package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"refsync/internal/config"
	"refsync/internal/engine"
	"refsync/internal/registry"
	"refsync/internal/session"
	"refsync/internal/store"
	"refsync/internal/tools"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	manifestFile string
	logLevel     string
	logFormat    string
	dryRun       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refsync",
	Short: "Synchronize managed file patches and copies against an embedded reference",
	Long: `refsync maintains managed relationships between a manifest and external
files: patches (text blocks injected between marker lines) and copies
(whole-file mirrors). The last-known content of every managed file is
embedded in the manifest itself, so a single file carries both the
registrations and their reference state.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive synchronization session",
	Long: `Run loads the manifest, extracts the embedded reference archive into a
scratch directory, and presents a menu of managed files. Selected files can
be compared, patched, imported, edited or forgotten; when the session ends
the reference archive is written back into the manifest if it changed.`,
	RunE: runSession,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the managed files from the manifest",
	RunE:  runList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("refsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&manifestFile, "manifest", "", "manifest file (default is $HOME/.config/refsync/manifest.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Run command flags
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what actions would do without writing files or the store")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load manifest
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	// Build registry
	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid registration: %w", err)
	}
	if reg.Len() == 0 {
		return fmt.Errorf("manifest registers no files")
	}

	// Open the embedded reference store
	st, err := store.Open(cfg.Path, cfg.Sentinel())
	if err != nil {
		return err
	}

	// Create external tools
	var diffTool tools.DiffTool
	if len(cfg.Tools.Diff) > 0 {
		diffTool = tools.NewShellDiff(cfg.Tools.Diff)
	}
	var editTool tools.EditTool
	if len(cfg.Tools.Edit) > 0 {
		editTool = tools.NewShellEdit(cfg.Tools.Edit)
	}

	// Create engine and session
	eng := engine.New(st, diffTool, editTool, logger, dryRun)
	sess := session.New(reg, eng, st, os.Stdin, os.Stdout, logger)

	logger.Info("starting interactive session", "manifest", cfg.Path, "files", reg.Len(), "dry_run", dryRun)
	if err := sess.Run(ctx); err != nil {
		logger.Error("session failed", "error", err)
		return err
	}

	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid registration: %w", err)
	}

	st, err := store.Open(cfg.Path, cfg.Sentinel())
	if err != nil {
		return err
	}
	defer func() {
		_ = st.Close()
	}()

	for _, f := range reg.Files() {
		tracked := ""
		if st.Has(f.ID()) {
			tracked = " [tracked]"
		}
		switch f.Kind {
		case registry.KindPatch:
			fmt.Printf("patch %s (%s .. %s, %s)%s\n", f.Path, f.Begin, f.End, f.Placement, tracked)
		case registry.KindCopy:
			fmt.Printf("copy  %s%s\n", f.Path, tracked)
		}
	}
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Diagnostics go to stderr; stdout carries the menu and diff output.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine manifest path
	manifestPath := manifestFile
	if manifestPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		manifestPath = fmt.Sprintf("%s/.config/refsync/manifest.yaml", home)
	}

	logger.Info("loading manifest", "path", manifestPath)

	cfg, err := config.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("manifest loaded",
		"patches", len(cfg.Patches),
		"copies", len(cfg.Copies),
		"sentinel", cfg.Sentinel())

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
