package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/euforicio/blogmd/internal/buildinfo"
	"github.com/euforicio/blogmd/internal/config"
	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/exporter"
	"github.com/euforicio/blogmd/internal/renderer"
	d2renderer "github.com/euforicio/blogmd/internal/renderer/d2"
)

var (
	cfg        config.Config
	logger     *slog.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "blogmd",
	Short: "Static blog generator with a live preview server",
	Long: `blogmd turns a directory of markdown posts and JSON metadata into a
static blog.

Posts live in blogs/<id>.md with their metadata in blogs/metadata/<id>.json.
Settings are read from blogmd.toml, .env, BLOGMD_* variables and flags, in
that order of increasing precedence.`,
	Version:       buildinfo.Summary(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		setupLogger()
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a TOML config file (default: ./"+config.DefaultFile+" if present)")
	config.RegisterFlags(rootCmd.PersistentFlags())
}

func loadConfig(cmd *cobra.Command) error {
	cfg = config.Default()

	path, required := configPath, true
	if path == "" {
		path, required = config.DefaultFile, false
	}
	if err := config.LoadFile(&cfg, path, required); err != nil {
		return err
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	config.ApplyEnvOverrides(&cfg)
	if err := config.ApplyFlags(cmd.Flags(), &cfg); err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	if err := config.Finalize(&cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// setupLogger writes to stderr so exports to stdout stay clean.
func setupLogger() {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("app", "blogmd")
	slog.SetDefault(logger)
}

type services struct {
	renderer *renderer.Service
	repo     *content.Repository
	exporter *exporter.Exporter
}

func newServices() (*services, error) {
	diagrams := d2renderer.New(logger, nil)
	rendererSvc := renderer.NewService(logger, renderer.Options{Diagrams: diagrams})

	repo, err := content.NewRepository(cfg.PostsDir, cfg.MetadataDir, rendererSvc, logger)
	if err != nil {
		return nil, fmt.Errorf("content repository init failed: %w", err)
	}
	exp, err := exporter.New(repo, cfg.Site, rendererSvc, diagrams, logger)
	if err != nil {
		return nil, fmt.Errorf("exporter init failed: %w", err)
	}
	return &services{renderer: rendererSvc, repo: repo, exporter: exp}, nil
}
