package server

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/euforicio/blogmd/internal/config"
	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/content/watch"
	"github.com/euforicio/blogmd/internal/exporter"
	"github.com/euforicio/blogmd/internal/renderer"
)

func TestPageRoutes(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	cases := []struct {
		path   string
		status int
		want   string
	}{
		{"/", http.StatusOK, "Recent posts"},
		{"/about", http.StatusOK, "About me!"},
		{"/blogs", http.StatusOK, "Signals without tears"},
		{"/blogs/hello-world", http.StatusOK, `<meta name="keywords" content="meta go">`},
		{"/blogs/missing-post", http.StatusNotFound, "This page could not be found"},
		{"/does/not/exist", http.StatusNotFound, "This page could not be found"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("expected html content type, got %q", ct)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("expected body to contain %q", tc.want)
			}
		})
	}
}

func TestThemeCookieFlow(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	// first visit: default dark, persisted immediately
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blogs", nil))
	cookie := findCookie(rec.Result().Cookies(), "theme")
	if cookie == nil || cookie.Value != "dark" {
		t.Fatalf("expected default dark cookie, got %+v", cookie)
	}
	if cookie.Path != "/" || cookie.MaxAge != 30*24*60*60 {
		t.Errorf("unexpected cookie attributes: %+v", cookie)
	}
	if !strings.Contains(rec.Body.String(), `<html lang="en" class="dark"`) {
		t.Error("expected dark class on html element")
	}

	// toggle through the form endpoint
	form := url.Values{"theme": {"light"}, "return": {"/blogs"}}
	req := httptest.NewRequest(http.MethodPost, "/theme", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "http://example.com")
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/blogs" {
		t.Errorf("expected redirect to /blogs, got %q", loc)
	}
	cookie = findCookie(rec.Result().Cookies(), "theme")
	if cookie == nil || cookie.Value != "light" {
		t.Fatalf("expected light cookie, got %+v", cookie)
	}

	// later request reads the stored preference
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `class="light"`) {
		t.Error("expected light class after switching theme")
	}
	if !strings.Contains(rec.Body.String(), "/static/css/chroma-light.css") {
		t.Error("expected light chroma stylesheet")
	}
}

func TestThemeRejectsInvalidValue(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/theme", strings.NewReader("theme=sepia"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSafeReturnPath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                  "/",
		"/blogs/x":          "/blogs/x",
		"//evil.test":       "/",
		`/\evil.test`:       "/",
		"https://evil.test": "/",
	}
	for in, want := range cases {
		if got := safeReturnPath(in); got != want {
			t.Errorf("safeReturnPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStylesheets(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	for _, tc := range []struct {
		path   string
		status int
	}{
		{"/static/css/chroma-light.css", http.StatusOK},
		{"/static/css/chroma-dark.css", http.StatusOK},
		{"/static/css/site.css", http.StatusOK},
		{"/static/css/chroma-blue.css", http.StatusNotFound},
		{"/static/js/theme.js", http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.path, tc.status, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/css/chroma-dark.css", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("expected text/css, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), ".chroma") {
		t.Error("expected chroma rules in stylesheet")
	}
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
	if len(rec.Header().Get(requestIDHeader)) != 26 {
		t.Errorf("expected a ULID request id, got %q", rec.Header().Get(requestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("expected incoming request id to be kept, got %q", got)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `blogmd_http_requests_total{code="200",method="GET",route="GET /healthz"} 2`) {
		t.Errorf("expected healthz request counter in metrics output:\n%s", body)
	}
}

func TestExportEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blogs/hello-world/export?format=markdown", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/markdown") {
			t.Errorf("expected markdown content type, got %q", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="hello-world.md"` {
			t.Errorf("unexpected content disposition %q", cd)
		}
		if !strings.HasPrefix(rec.Body.String(), "# Hello, world") {
			t.Errorf("expected raw markdown, got %q", rec.Body.String())
		}
	})

	t.Run("defaults to html", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blogs/hello-world/export", nil))
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
			t.Errorf("expected html content type, got %q", ct)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blogs/hello-world/export?format=docx", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing post", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blogs/nope/export?format=txt", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestSitemapAndFeed(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	for path, ct := range map[string]string{
		"/sitemap.xml": "application/xml",
		"/feed.xml":    "application/rss+xml",
	} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, ct) {
			t.Errorf("%s: expected %s, got %q", path, ct, got)
		}
		if !strings.Contains(rec.Body.String(), "/blogs/linux-signals") {
			t.Errorf("%s: expected post url in body", path)
		}
	}
}

func TestGzipResponses(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/blogs", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers: %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(body), "Blog posts") {
		t.Error("expected decompressed page body")
	}
}

func TestEventsStreamsContentChanges(t *testing.T) {
	t.Parallel()
	srv, root := newTestServer(t, true)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept-Encoding", "identity")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("events request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": ready") {
		t.Fatalf("expected ready comment, got %q (%v)", line, err)
	}

	post := filepath.Join(root, "blogs", "hello-world.md")
	if err := os.WriteFile(post, []byte("# Hello again\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before change event: %v", err)
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"id":"hello-world"`) {
			return
		}
	}
}

func TestEventsDisabledWithoutWatcher(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without watcher, got %d", rec.Code)
	}
}

// newTestServer serves a copy of testdata/blog. The returned path is the copy's root.
func newTestServer(t *testing.T, live bool) (*Server, string) {
	t.Helper()

	root := t.TempDir()
	copyDir(t, filepath.Join("..", "..", "testdata", "blog"), root)
	postsDir := filepath.Join(root, "blogs")
	metaDir := filepath.Join(postsDir, "metadata")

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	renderSvc := renderer.NewService(logger, renderer.Options{})
	repo, err := content.NewRepository(postsDir, metaDir, renderSvc, logger)
	if err != nil {
		t.Fatalf("repository init failed: %v", err)
	}

	cfg := config.Default()
	cfg.AutoOpen = false
	cfg.Site.BaseURL = "https://blog.example.test"

	exp, err := exporter.New(repo, cfg.Site, renderSvc, nil, logger)
	if err != nil {
		t.Fatalf("exporter init failed: %v", err)
	}

	var watcher *watch.Watcher
	if live {
		watcher, err = watch.New(context.Background(), logger, postsDir, metaDir)
		if err != nil {
			t.Fatalf("watcher init failed: %v", err)
		}
		t.Cleanup(func() { _ = watcher.Close() })
	}

	srv, err := New(cfg, logger, repo, exp, watcher)
	if err != nil {
		t.Fatalf("server init failed: %v", err)
	}
	return srv, root
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	if err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	}); err != nil {
		t.Fatalf("copyDir failed: %v", err)
	}
}
