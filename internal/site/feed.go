package site

import (
	"context"
	"encoding/xml"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/euforicio/blogmd/internal/content"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        string   `xml:"guid"`
}

// Sitemap writes sitemap.xml for every page except the not-found page. Post
// entries carry their date as lastmod.
func (p *Pages) Sitemap(ctx context.Context, w io.Writer) error {
	routes, err := Routes(ctx, p.posts)
	if err != nil {
		return err
	}
	posts, err := p.posts.ListAllMetadata(ctx)
	if err != nil {
		return err
	}
	dates := make(map[string]string, len(posts))
	for _, post := range posts {
		dates[post.ID] = post.Date
	}

	urls := make([]sitemapURL, 0, len(routes))
	for _, r := range routes {
		if r.Kind == KindNotFound {
			continue
		}
		urls = append(urls, sitemapURL{Loc: AbsoluteURL(p.opts.Site.BaseURL, r.Path), LastMod: dates[r.PostID]})
	}
	return writeXML(w, sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}

// Feed writes an RSS 2.0 feed with the newest post first.
func (p *Pages) Feed(ctx context.Context, w io.Writer) error {
	posts, err := p.posts.ListAllMetadata(ctx)
	if err != nil {
		return err
	}
	posts = slices.Clone(posts)
	slices.Reverse(posts)

	items := make([]rssItem, 0, len(posts))
	for _, post := range posts {
		link := AbsoluteURL(p.opts.Site.BaseURL, PostURL(post.ID))
		items = append(items, rssItem{
			Title:       post.Title,
			Link:        link,
			Description: post.Description,
			Author:      post.Author,
			Categories:  feedCategories(post),
			PubDate:     rssDate(post.Date),
			GUID:        link,
		})
	}
	return writeXML(w, rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       p.opts.Site.Title,
			Link:        AbsoluteURL(p.opts.Site.BaseURL, "/"),
			Description: p.opts.Site.Description,
			Items:       items,
		},
	})
}

func feedCategories(post content.PostMetadata) []string {
	categories := []string{post.Category}
	for _, k := range post.Keywords {
		if !slices.Contains(categories, k) {
			categories = append(categories, k)
		}
	}
	return categories
}

// rssDate converts YYYY-MM-DD to RFC 1123. Other layouts are omitted.
func rssDate(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC1123Z)
}

// AbsoluteURL joins base and an absolute path. An empty base leaves the path
// relative to the site root.
func AbsoluteURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func writeXML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
