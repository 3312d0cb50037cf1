// Package exporter writes the blog as a static site and exports single posts
// in other formats.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/euforicio/blogmd/internal/config"
	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/renderer"
	d2renderer "github.com/euforicio/blogmd/internal/renderer/d2"
	"github.com/euforicio/blogmd/internal/site"
	"github.com/euforicio/blogmd/internal/theme"
	blogstatic "github.com/euforicio/blogmd/static"
)

const defaultAssetPrefix = "assets"

// ErrUnsafeOutput is returned when a build would write over or delete its own
// source files, or place assets outside the output directory.
var ErrUnsafeOutput = errors.New("unsafe output location")

// Posts is the content the exporter reads: everything pages need plus the
// unrendered markdown of a post and the directories it lives in.
type Posts interface {
	site.Posts
	Source(ctx context.Context, id string) (content.PostMetadata, []byte, error)
	PostsDir() string
	MetadataDir() string
}

// Options configure a static build.
type Options struct {
	OutputDir string
	// AssetsDir replaces the embedded assets when set.
	AssetsDir string
	// AssetPrefix is the output sub-directory for assets. Defaults to "assets".
	AssetPrefix string
	CleanOutput bool
	// PDF additionally writes blogs/<id>/<id>.pdf for every post.
	PDF bool
}

// Summary describes a finished build.
type Summary struct {
	OutputDir string
	Pages     int
	PDFs      int
	Bytes     int64
	Duration  time.Duration
}

// Exporter renders posts into files.
type Exporter struct {
	posts    Posts
	site     config.Site
	renderer *renderer.Service
	diagrams *diagramEncoder
	logger   *slog.Logger
}

// New constructs an exporter. diagrams may be nil, in which case d2 fences
// stay as code blocks in PDF output.
func New(posts Posts, siteCfg config.Site, rendererSvc *renderer.Service, diagrams *d2renderer.Renderer, logger *slog.Logger) (*Exporter, error) {
	if posts == nil {
		return nil, errors.New("post source must be provided")
	}
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "exporter")
	return &Exporter{
		posts:    posts,
		site:     siteCfg,
		renderer: rendererSvc,
		diagrams: &diagramEncoder{d2: diagrams, logger: logger},
		logger:   logger,
	}, nil
}

// Export writes every route, the assets, the sitemap and the feed into
// opts.OutputDir. The first failure aborts the build.
func (e *Exporter) Export(ctx context.Context, opts Options) (Summary, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return Summary{}, errors.New("output directory is required")
	}
	prefix := strings.Trim(opts.AssetPrefix, "/")
	if prefix == "" {
		prefix = defaultAssetPrefix
	}
	if !filepath.IsLocal(filepath.FromSlash(prefix)) || path.Clean(prefix) == "." {
		return Summary{}, fmt.Errorf("%w: asset prefix %q must name a sub-directory of the output", ErrUnsafeOutput, opts.AssetPrefix)
	}
	prefix = path.Clean(prefix)

	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve output: %w", err)
	}
	for _, src := range []string{e.posts.PostsDir(), e.posts.MetadataDir()} {
		if containsPath(outputDir, src) {
			return Summary{}, fmt.Errorf("%w: output %s contains content directory %s", ErrUnsafeOutput, outputDir, src)
		}
	}
	if err := prepareOutputDir(outputDir, opts.CleanOutput); err != nil {
		return Summary{}, err
	}

	started := time.Now()
	summary := Summary{OutputDir: outputDir}

	pages, err := site.NewPages(e.posts, site.Options{Site: e.site, AssetBase: "/" + prefix})
	if err != nil {
		return Summary{}, err
	}
	// static pages are rendered in the default theme; theme.js applies the
	// reader's cookie on load
	ctx = theme.WithState(ctx, theme.Load(nil))

	routes, err := site.Routes(ctx, e.posts)
	if err != nil {
		return Summary{}, fmt.Errorf("enumerate routes: %w", err)
	}

	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		var buf bytes.Buffer
		if err := pages.Render(ctx, &buf, route); err != nil {
			return Summary{}, fmt.Errorf("render %s: %w", route.Path, err)
		}
		n, err := writeOutput(outputDir, route.Output, buf.Bytes())
		if err != nil {
			return Summary{}, fmt.Errorf("write %s: %w", route.Output, err)
		}
		summary.Pages++
		summary.Bytes += n
	}

	assetDest := filepath.Join(outputDir, filepath.FromSlash(prefix))
	n, err := e.copyAssetBundle(assetDest, opts.AssetsDir)
	if err != nil {
		return Summary{}, err
	}
	summary.Bytes += n

	for _, t := range []theme.Theme{theme.Light, theme.Dark} {
		css, err := site.ChromaCSS(t)
		if err != nil {
			return Summary{}, err
		}
		n, err := writeOutput(assetDest, path.Join("css", "chroma-"+t.String()+".css"), css)
		if err != nil {
			return Summary{}, fmt.Errorf("write chroma css: %w", err)
		}
		summary.Bytes += n
	}

	for name, write := range map[string]func(context.Context, io.Writer) error{
		"sitemap.xml": pages.Sitemap,
		"feed.xml":    pages.Feed,
	} {
		var buf bytes.Buffer
		if err := write(ctx, &buf); err != nil {
			return Summary{}, fmt.Errorf("render %s: %w", name, err)
		}
		n, err := writeOutput(outputDir, name, buf.Bytes())
		if err != nil {
			return Summary{}, fmt.Errorf("write %s: %w", name, err)
		}
		summary.Bytes += n
	}

	if opts.PDF {
		for _, route := range routes {
			if route.Kind != site.KindPost {
				continue
			}
			if err := ctx.Err(); err != nil {
				return Summary{}, err
			}
			var buf bytes.Buffer
			if err := e.ExportPost(ctx, route.PostID, FormatPDF, &buf); err != nil {
				return Summary{}, err
			}
			rel := path.Join("blogs", route.PostID, route.PostID+FileExtension(FormatPDF))
			n, err := writeOutput(outputDir, rel, buf.Bytes())
			if err != nil {
				return Summary{}, fmt.Errorf("write %s: %w", rel, err)
			}
			summary.PDFs++
			summary.Bytes += n
		}
	}

	summary.Duration = time.Since(started)
	e.logger.Info("export complete",
		slog.Int("pages", summary.Pages),
		slog.Int("pdfs", summary.PDFs),
		slog.String("size", humanize.Bytes(uint64(summary.Bytes))), //nolint:gosec // byte counts are never negative
		slog.String("output", outputDir),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// containsPath reports whether target is dir or lies below it.
func containsPath(dir, target string) bool {
	abs, err := filepath.Abs(target)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

func prepareOutputDir(output string, clean bool) error {
	if clean {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}
	return os.MkdirAll(output, 0o755) //nolint:gosec // standard directory permissions
}

func writeOutput(root, rel string, data []byte) (int64, error) {
	if err := blogstatic.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (e *Exporter) copyAssetBundle(dest, override string) (int64, error) {
	if err := os.RemoveAll(dest); err != nil {
		return 0, fmt.Errorf("reset assets dir: %w", err)
	}
	override = strings.TrimSpace(override)
	if override != "" {
		info, err := os.Stat(override)
		switch {
		case err == nil && info.IsDir():
			n, err := blogstatic.CopyAll(os.DirFS(override), dest)
			if err != nil {
				return 0, fmt.Errorf("copy override assets: %w", err)
			}
			e.logger.Debug("exporter using override assets", slog.String("source", override))
			return n, nil
		case err == nil:
			return 0, fmt.Errorf("assets path %s is not a directory", override)
		case !errors.Is(err, os.ErrNotExist):
			return 0, fmt.Errorf("stat assets override: %w", err)
		}
		e.logger.Warn("assets override missing, using embedded assets", slog.String("source", override))
	}

	n, err := blogstatic.CopyAll(nil, dest)
	if err != nil {
		return 0, fmt.Errorf("copy embedded assets: %w", err)
	}
	return n, nil
}
