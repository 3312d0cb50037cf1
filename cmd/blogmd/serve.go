package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/euforicio/blogmd/internal/buildinfo"
	"github.com/euforicio/blogmd/internal/content/watch"
	"github.com/euforicio/blogmd/internal/server"
)

var serveOpts struct {
	noReload bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local preview server",
	Long: `Serve renders every page on request from the files on disk, so edits
show up on the next reload. Unless --no-reload is set, open pages reload
themselves when a post or its metadata changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveOpts.noReload, "no-reload", false, "disable the file watcher and live reload")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Log(ctx, slog.LevelInfo-1, "starting blogmd preview", slog.String("version", buildinfo.Summary()))

	svc, err := newServices()
	if err != nil {
		return err
	}

	var watcher *watch.Watcher
	if !serveOpts.noReload {
		watcher, err = watch.New(ctx, logger, cfg.PostsDir, cfg.MetadataDir)
		if err != nil {
			return fmt.Errorf("watch content: %w", err)
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Error("close watcher", slog.Any("err", err))
			}
		}()
	}

	srv, err := server.New(cfg, logger, svc.repo, svc.exporter, watcher)
	if err != nil {
		return fmt.Errorf("server init failed: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return nil
		}
		return err
	}
	return nil
}
