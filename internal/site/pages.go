package site

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/euforicio/blogmd/internal/config"
	"github.com/euforicio/blogmd/internal/theme"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// Options control how pages link to assets and the theme endpoint.
type Options struct {
	Site config.Site
	// AssetBase prefixes stylesheet and script URLs, e.g. "/static" or "/assets".
	AssetBase string
	// ThemeURL is the form target for the theme toggle. Empty renders a
	// client-side toggle instead (static builds).
	ThemeURL string
	// LiveReload includes the SSE reload script.
	LiveReload bool
}

// Pages renders site routes to HTML.
type Pages struct {
	posts Posts
	tmpl  *template.Template
	opts  Options
}

// NewPages parses the embedded templates.
func NewPages(posts Posts, opts Options) (*Pages, error) {
	funcs := template.FuncMap{
		"isActive": func(active, candidate string) bool {
			return strings.EqualFold(strings.TrimSpace(active), strings.TrimSpace(candidate))
		},
	}
	tmpl, err := template.New("site").Funcs(funcs).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	opts.AssetBase = strings.TrimRight(opts.AssetBase, "/")
	return &Pages{posts: posts, tmpl: tmpl, opts: opts}, nil
}

// Render writes the page for route. The theme comes from the state carried by
// ctx. Nothing is written when loading the page's content fails, so callers
// can still choose a status code.
func (p *Pages) Render(ctx context.Context, w io.Writer, route Route) error {
	v := p.baseView(ctx)
	v.Path = route.Path
	v.Active = route.Path

	switch route.Kind {
	case KindHome:
		posts, err := p.posts.ListAllMetadata(ctx)
		if err != nil {
			return err
		}
		v.Meta = sitePageMeta(p.opts.Site, "")
		v.Cards = recentCards(posts, recentPostCount)
		v.Paragraphs = paragraphs(p.opts.Site.Description)
	case KindAbout:
		v.Meta = sitePageMeta(p.opts.Site, "About")
		v.Paragraphs = paragraphs(p.opts.Site.About)
	case KindBlogList:
		posts, err := p.posts.ListAllMetadata(ctx)
		if err != nil {
			return err
		}
		v.Meta = sitePageMeta(p.opts.Site, "")
		v.Cards = postCards(posts)
	case KindPost:
		post, err := p.posts.GetPost(ctx, route.PostID)
		if err != nil {
			return err
		}
		v.Active = "/blogs"
		v.Meta = PostPageMeta(post.PostMetadata)
		//nolint:gosec // post bodies are authored content and injected verbatim
		v.Post = &PostView{PostMetadata: post.PostMetadata, HTML: template.HTML(post.HTMLContent)}
	case KindNotFound:
		v.Meta = sitePageMeta(p.opts.Site, "")
		v.Error = &ErrorView{Code: http.StatusNotFound, Description: "This page could not be found"}
	default:
		return fmt.Errorf("unknown route kind %d", route.Kind)
	}

	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, route.Kind.String(), v); err != nil {
		return fmt.Errorf("render %s: %w", route.Path, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (p *Pages) baseView(ctx context.Context) view {
	return view{
		Site:       p.opts.Site,
		Theme:      theme.FromContext(ctx).Get(),
		Nav:        navigation,
		AssetBase:  p.opts.AssetBase,
		ThemeURL:   p.opts.ThemeURL,
		LiveReload: p.opts.LiveReload,
	}
}
