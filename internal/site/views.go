package site

import (
	"html/template"
	"slices"
	"strings"

	"github.com/euforicio/blogmd/internal/config"
	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/theme"
)

const recentPostCount = 5

// PageMeta is the head metadata of a page.
type PageMeta struct {
	Title       string
	Description string
	Keywords    string
}

// PostPageMeta uses the post's own title and description, with its keywords
// joined by single spaces.
func PostPageMeta(meta content.PostMetadata) PageMeta {
	return PageMeta{
		Title:       meta.Title,
		Description: meta.Description,
		Keywords:    strings.Join(meta.Keywords, " "),
	}
}

func sitePageMeta(s config.Site, title string) PageMeta {
	if title == "" {
		title = s.Title
	}
	return PageMeta{Title: title, Description: s.Description, Keywords: s.Keywords}
}

// ShortDate keeps the first two dash-separated segments of date, so
// "2023-07-15" becomes "2023-07". Input without a dash is returned unchanged.
func ShortDate(date string) string {
	segments := strings.SplitN(date, "-", 3)
	if len(segments) < 2 {
		return date
	}
	return segments[0] + "-" + segments[1]
}

// PostCard is one entry of a post list.
type PostCard struct {
	ID            string
	URL           string
	Title         string
	Description   string
	Category      string
	CoverImageURL string
	ShortDate     string
}

// HasCover reports whether the card shows an image instead of the category label.
func (c PostCard) HasCover() bool {
	return strings.TrimSpace(c.CoverImageURL) != ""
}

// NewPostCard builds the list entry for one post.
func NewPostCard(meta content.PostMetadata) PostCard {
	return PostCard{
		ID:            meta.ID,
		URL:           PostURL(meta.ID),
		Title:         meta.Title,
		Description:   meta.Description,
		Category:      meta.Category,
		CoverImageURL: meta.CoverImageURL,
		ShortDate:     ShortDate(meta.Date),
	}
}

func postCards(posts []content.PostMetadata) []PostCard {
	cards := make([]PostCard, 0, len(posts))
	for _, p := range posts {
		cards = append(cards, NewPostCard(p))
	}
	return cards
}

// recentCards returns up to n of the latest posts, newest first. posts must
// already be sorted ascending by date.
func recentCards(posts []content.PostMetadata, n int) []PostCard {
	latest := slices.Clone(posts)
	slices.Reverse(latest)
	if len(latest) > n {
		latest = latest[:n]
	}
	return postCards(latest)
}

// PostView is the detail page of one post.
type PostView struct {
	content.PostMetadata
	HTML template.HTML
}

// HasMermaid reports whether the body contains mermaid diagrams that need the
// client-side script.
func (p PostView) HasMermaid() bool {
	return strings.Contains(string(p.HTML), `class="mermaid"`)
}

// ErrorView is shown on the not-found page.
type ErrorView struct {
	Code        int
	Description string
}

type navItem struct {
	Name string
	Link string
}

var navigation = []navItem{
	{Name: "Home", Link: "/"},
	{Name: "About", Link: "/about"},
	{Name: "Blog", Link: "/blogs"},
}

// view is the data passed to every page template.
type view struct {
	Site       config.Site
	Meta       PageMeta
	Theme      theme.Theme
	Path       string
	Active     string
	Nav        []navItem
	AssetBase  string
	ThemeURL   string
	LiveReload bool

	Cards      []PostCard
	Post       *PostView
	Error      *ErrorView
	Paragraphs []string
}

func paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}
