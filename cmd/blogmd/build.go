package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/euforicio/blogmd/internal/content/watch"
	"github.com/euforicio/blogmd/internal/exporter"
)

var buildOpts struct {
	clean       bool
	pdf         bool
	watch       bool
	assetPrefix string
}

// rebuildDelay coalesces the burst of events an editor save produces.
const rebuildDelay = 250 * time.Millisecond

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate the static site",
	Long: `Build renders the home, about, blog list, every post and the 404 page
into the output directory, together with assets, both syntax-highlighting
stylesheets, sitemap.xml and feed.xml.

With --watch the whole site is rebuilt whenever a post changes.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildOpts.clean, "clean", true, "wipe the output directory before building")
	buildCmd.Flags().BoolVar(&buildOpts.pdf, "pdf", false, "also write a PDF next to every post page")
	buildCmd.Flags().BoolVarP(&buildOpts.watch, "watch", "w", false, "rebuild when posts change")
	buildCmd.Flags().StringVar(&buildOpts.assetPrefix, "asset-prefix", "assets", "output sub-directory for static assets")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := newServices()
	if err != nil {
		return err
	}
	opts := exporter.Options{
		OutputDir:   cfg.StaticOutput,
		AssetsDir:   cfg.AssetsDir,
		AssetPrefix: buildOpts.assetPrefix,
		CleanOutput: buildOpts.clean,
		PDF:         buildOpts.pdf,
	}

	out := cmd.OutOrStdout()
	if err := buildOnce(ctx, out, svc.exporter, opts); err != nil {
		return err
	}
	if !buildOpts.watch {
		return nil
	}
	return watchAndRebuild(ctx, out, svc.exporter, opts)
}

func buildOnce(ctx context.Context, out io.Writer, exp *exporter.Exporter, opts exporter.Options) error {
	summary, err := exp.Export(ctx, opts)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "built %d pages, %d PDFs (%s) into %s in %s\n",
		summary.Pages, summary.PDFs, humanize.Bytes(uint64(summary.Bytes)), //nolint:gosec // byte counts are never negative
		summary.OutputDir, summary.Duration.Round(time.Millisecond))
	return err
}

func watchAndRebuild(ctx context.Context, out io.Writer, exp *exporter.Exporter, opts exporter.Options) error {
	watcher, err := watch.New(ctx, logger, cfg.PostsDir, cfg.MetadataDir)
	if err != nil {
		return fmt.Errorf("watch content: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Error("close watcher", slog.Any("err", err))
		}
	}()

	events := watcher.Subscribe(ctx)
	_, _ = fmt.Fprintf(out, "watching %s for changes\n", cfg.PostsDir)

	timer := time.NewTimer(rebuildDelay)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			logger.Debug("change detected", slog.String("type", evt.Type), slog.String("id", evt.ID))
			timer.Reset(rebuildDelay)
		case <-timer.C:
			// a failed rebuild keeps the watcher alive; the next save retries
			if err := buildOnce(ctx, out, exp, opts); err != nil {
				logger.Error("rebuild failed", slog.Any("err", err))
			}
		}
	}
}
