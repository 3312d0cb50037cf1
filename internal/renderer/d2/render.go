// Package d2 compiles D2 diagram sources embedded in posts to SVG, one SVG per
// site theme.
package d2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"

	"github.com/euforicio/blogmd/internal/theme"
)

// ErrEmptyDiagram is returned when a fence has no diagram source.
var ErrEmptyDiagram = errors.New("empty d2 diagram")

// Diagram identifies one ```d2 fence: the post it belongs to and its 1-based
// position among that post's diagrams.
type Diagram struct {
	PostID string
	Index  int
	Source string
}

func (d Diagram) String() string {
	return fmt.Sprintf("%s#d2-%d", d.PostID, d.Index)
}

// Error is a failed diagram, keyed to where it appears.
type Error struct {
	Diagram Diagram
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("post %q diagram %d: %v", e.Diagram.PostID, e.Diagram.Index, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Palettes maps each site theme to the D2 theme it is drawn with.
type Palettes map[theme.Theme]int64

// DefaultPalettes match the light and dark page styles.
func DefaultPalettes() Palettes {
	return Palettes{
		theme.Light: d2themescatalog.NeutralDefault.ID,
		theme.Dark:  d2themescatalog.DarkFlagshipTerrastruct.ID,
	}
}

// Options configure the renderer. Zero values take the defaults.
type Options struct {
	Timeout  time.Duration
	Palettes Palettes
}

// Renderer compiles D2 sources in-process.
type Renderer struct {
	logger   *slog.Logger
	timeout  time.Duration
	palettes Palettes
}

// New creates a renderer. opts may be nil.
func New(logger *slog.Logger, opts *Options) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		logger:   logger.With("component", "d2"),
		timeout:  12 * time.Second,
		palettes: DefaultPalettes(),
	}
	if opts != nil {
		if opts.Timeout > 0 {
			r.timeout = opts.Timeout
		}
		for t, id := range opts.Palettes {
			r.palettes[t] = id
		}
	}
	return r
}

// Palette returns the D2 theme id used for t.
func (r *Renderer) Palette(t theme.Theme) int64 {
	if id, ok := r.palettes[t]; ok {
		return id
	}
	return r.palettes[theme.Default]
}

// Render compiles d once per requested theme and returns the SVGs keyed by
// theme. Layout directives in the source (dagre or elk) are honoured. Failures
// are returned as *Error.
func (r *Renderer) Render(ctx context.Context, d Diagram, themes ...theme.Theme) (map[theme.Theme]string, error) {
	if strings.TrimSpace(d.Source) == "" {
		return nil, &Error{Diagram: d, Err: ErrEmptyDiagram}
	}
	if len(themes) == 0 {
		themes = []theme.Theme{theme.Light, theme.Dark}
	}

	logger := r.logger.With(slog.String("post", d.PostID), slog.Int("diagram", d.Index))
	ctx, cancel := context.WithTimeout(d2log.With(ctx, logger), r.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return nil, &Error{Diagram: d, Err: fmt.Errorf("init ruler: %w", err)}
	}

	start := time.Now()
	out := make(map[theme.Theme]string, len(themes))
	for _, t := range themes {
		// the salt keeps each variant's scoped CSS classes distinct on a shared page
		svg, err := r.compile(ctx, ruler, d.Source, r.Palette(t), d.String()+"-"+t.String())
		if err != nil {
			logger.WarnContext(ctx, "d2 render failed", slog.String("theme", t.String()), slog.Any("err", err))
			return nil, &Error{Diagram: d, Err: err}
		}
		out[t] = svg
	}
	logger.DebugContext(ctx, "d2 diagram rendered", slog.Int("variants", len(out)), slog.Duration("took", time.Since(start)))
	return out, nil
}

func (r *Renderer) compile(ctx context.Context, ruler *textmeasure.Ruler, source string, themeID int64, salt string) (string, error) {
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{ThemeID: &themeID, Pad: &pad, Salt: &salt}

	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: layoutResolver,
	}, renderOpts)
	if err != nil {
		return "", err
	}
	if diagram == nil {
		return "", errors.New("d2 compiler returned nil diagram")
	}
	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return "", fmt.Errorf("render svg: %w", err)
	}
	return string(svg), nil
}

func layoutResolver(engine string) (d2graph.LayoutGraph, error) {
	switch strings.ToLower(engine) {
	case "", "dagre":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2dagrelayout.Layout(ctx, g, nil)
		}, nil
	case "elk":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2elklayout.Layout(ctx, g, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported D2 layout %q", engine)
	}
}
