// Package site turns loaded posts into the pages of the blog: the route set
// shared by the static build and the preview server, the view models, and the
// html/template pages themselves.
package site

import (
	"context"
	"net/url"
	"path"

	"github.com/euforicio/blogmd/internal/content"
)

// Posts is the read side of the content repository that pages depend on.
type Posts interface {
	ListPostIDs(ctx context.Context) ([]string, error)
	ListAllMetadata(ctx context.Context) ([]content.PostMetadata, error)
	GetPost(ctx context.Context, id string) (content.PostContent, error)
}

// Kind identifies which page template a route renders.
type Kind int

const (
	KindHome Kind = iota
	KindAbout
	KindBlogList
	KindPost
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindHome:
		return "home"
	case KindAbout:
		return "about"
	case KindBlogList:
		return "blogs"
	case KindPost:
		return "post"
	case KindNotFound:
		return "notfound"
	default:
		return "unknown"
	}
}

// PostRoute is the parameter set for one /blogs/<id> page.
type PostRoute struct {
	ID string
}

// Route is one generated page.
type Route struct {
	// Path is the URL path served for the page.
	Path string
	// Output is the file written by the static build, relative to the output directory.
	Output string
	Kind   Kind
	PostID string
}

// PostRoutes returns one route per post id, in listing order. The id set is
// exactly the set returned by ListPostIDs.
func PostRoutes(ctx context.Context, posts Posts) ([]PostRoute, error) {
	ids, err := posts.ListPostIDs(ctx)
	if err != nil {
		return nil, err
	}
	routes := make([]PostRoute, 0, len(ids))
	for _, id := range ids {
		routes = append(routes, PostRoute{ID: id})
	}
	return routes, nil
}

// Routes returns every page of the site: the fixed pages, one page per post
// and the not-found page.
func Routes(ctx context.Context, posts Posts) ([]Route, error) {
	postRoutes, err := PostRoutes(ctx, posts)
	if err != nil {
		return nil, err
	}
	routes := []Route{
		{Path: "/", Output: "index.html", Kind: KindHome},
		{Path: "/about", Output: path.Join("about", "index.html"), Kind: KindAbout},
		{Path: "/blogs", Output: path.Join("blogs", "index.html"), Kind: KindBlogList},
	}
	for _, pr := range postRoutes {
		routes = append(routes, PostRouteFor(pr.ID))
	}
	routes = append(routes, NotFoundRoute())
	return routes, nil
}

// PostRouteFor returns the detail page route for id.
func PostRouteFor(id string) Route {
	return Route{
		Path:   PostURL(id),
		Output: path.Join("blogs", id, "index.html"),
		Kind:   KindPost,
		PostID: id,
	}
}

// NotFoundRoute is the page served for unknown paths.
func NotFoundRoute() Route {
	return Route{Path: "/404.html", Output: "404.html", Kind: KindNotFound}
}

// PostURL is the URL path of a post's detail page. The id is escaped as a
// single path segment.
func PostURL(id string) string {
	return "/blogs/" + url.PathEscape(id)
}
