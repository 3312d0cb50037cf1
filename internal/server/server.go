// Package server provides the local preview server: it renders the same pages
// as the static build on request and reloads them when posts change.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/euforicio/blogmd/internal/config"
	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/content/watch"
	"github.com/euforicio/blogmd/internal/exporter"
	"github.com/euforicio/blogmd/internal/site"
	"github.com/euforicio/blogmd/internal/theme"
	blogstatic "github.com/euforicio/blogmd/static"
)

// Server serves the blog over HTTP.
type Server struct { //nolint:govet // field order favors logical grouping over padding optimizations
	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	pages      *site.Pages
	exporter   *exporter.Exporter
	watcher    *watch.Watcher
	metrics    *metrics
	static     http.Handler
	cfg        config.Config
}

// New constructs a Server. watcher may be nil, which disables live reload.
func New(cfg config.Config, logger *slog.Logger, posts exporter.Posts, exp *exporter.Exporter, watcher *watch.Watcher) (*Server, error) {
	if posts == nil || exp == nil {
		return nil, errors.New("post source and exporter must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pages, err := site.NewPages(posts, site.Options{
		Site:       cfg.Site,
		AssetBase:  "/static",
		ThemeURL:   "/theme",
		LiveReload: watcher != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   logger.With("component", "http"),
		pages:    pages,
		exporter: exp,
		watcher:  watcher,
		metrics:  newMetrics(),
	}
	s.static = http.StripPrefix("/static/", http.FileServer(s.resolveStaticFS()))
	s.registerRoutes()

	// metrics must stay innermost, see metrics.middleware
	s.handler = chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		csrfMiddleware,
		gzipMiddleware,
		loggingMiddleware(s.logger, cfg.Verbose),
		theme.Middleware,
		s.metrics.middleware,
	)
	return s, nil
}

// ServeHTTP runs the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/css/{file}", s.handleStylesheet)
	s.mux.Handle("GET /static/{path...}", s.static)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.handler())
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("POST /theme", s.handleTheme)

	s.mux.HandleFunc("GET /sitemap.xml", s.handleXML(s.pages.Sitemap, "application/xml; charset=utf-8"))
	s.mux.HandleFunc("GET /feed.xml", s.handleXML(s.pages.Feed, "application/rss+xml; charset=utf-8"))

	s.mux.HandleFunc("GET /{$}", s.handleRoute(site.Route{Path: "/", Kind: site.KindHome}))
	s.mux.HandleFunc("GET /about", s.handleRoute(site.Route{Path: "/about", Kind: site.KindAbout}))
	s.mux.HandleFunc("GET /blogs", s.handleRoute(site.Route{Path: "/blogs", Kind: site.KindBlogList}))
	s.mux.HandleFunc("GET /blogs/{id}", s.handlePost)
	s.mux.HandleFunc("GET /blogs/{id}/export", s.handleExport)
	s.mux.HandleFunc("GET /", s.handleNotFound)
}

func (s *Server) resolveStaticFS() http.FileSystem {
	dir := strings.TrimSpace(s.cfg.AssetsDir)
	if dir != "" {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			s.logger.Debug("serving assets from filesystem", slog.String("dir", dir))
			return http.Dir(dir)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("assets dir check failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	s.logger.Debug("serving embedded assets")
	return blogstatic.HTTP()
}

// Start listens on the configured port (a free one when 0) and blocks until
// ctx is cancelled or the server fails. Cancellation shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return errors.New("unexpected listener address type")
	}
	serverURL := fmt.Sprintf("http://localhost:%d", tcpAddr.Port)

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if _, err := fmt.Fprintf(os.Stdout, "blogmd preview listening on %s\n", serverURL); err != nil {
			s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
		}
		errCh <- s.httpServer.Serve(listener)
	}()

	if s.cfg.AutoOpen {
		go s.openBrowserWhenReady(ctx, serverURL)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRoute(route site.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderRoute(w, r, route, http.StatusOK)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	s.renderRoute(w, r, site.PostRouteFor(r.PathValue("id")), http.StatusOK)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderRoute(w, r, site.NotFoundRoute(), http.StatusNotFound)
}

// renderRoute writes the page for route. Missing posts fall through to the
// not-found page; other failures are a 500.
func (s *Server) renderRoute(w http.ResponseWriter, r *http.Request, route site.Route, status int) {
	ctx := r.Context()
	var buf bytes.Buffer
	if err := s.pages.Render(ctx, &buf, route); err != nil {
		if errors.Is(err, content.ErrNotFound) && route.Kind != site.KindNotFound {
			s.logger.DebugContext(ctx, "post not found", slog.String("path", r.URL.Path))
			s.handleNotFound(w, r)
			return
		}
		s.metrics.renderErrors.Inc()
		s.logger.ErrorContext(ctx, "render page failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestID(ctx)),
			slog.Any("err", err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// handleTheme is the only way the preview server changes the theme. It
// persists the choice through the request's theme state and redirects back.
func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	state := theme.FromContext(ctx)
	value := r.PostFormValue("theme")
	if err := state.Set(value); err != nil {
		if errors.Is(err, theme.ErrInvalidTheme) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.WarnContext(ctx, "persist theme failed", slog.Any("err", err))
	}
	s.metrics.themeChanges.WithLabelValues(state.Get().String()).Inc()
	http.Redirect(w, r, safeReturnPath(r.PostFormValue("return")), http.StatusSeeOther)
}

// safeReturnPath only allows same-site absolute paths.
func safeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, `/\`) {
		return "/"
	}
	return p
}

func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	name, ok := strings.CutPrefix(strings.TrimSuffix(file, ".css"), "chroma-")
	t, valid := theme.Parse(name)
	if !ok || !valid || !strings.HasSuffix(file, ".css") {
		s.static.ServeHTTP(w, r)
		return
	}
	css, err := site.ChromaCSS(t)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "generate chroma css failed", slog.Any("err", err))
		http.Error(w, "failed to generate stylesheet", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(css)
}

func (s *Server) handleXML(write func(context.Context, io.Writer) error, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := write(r.Context(), &buf); err != nil {
			s.logger.ErrorContext(r.Context(), "render xml failed", slog.String("path", r.URL.Path), slog.Any("err", err))
			http.Error(w, "failed to render document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = buf.WriteTo(w)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		http.Error(w, "live reload disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.watcher.Subscribe(ctx)

	if _, err := w.Write([]byte(": ready\n\n")); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.WarnContext(ctx, "encode sse event failed", slog.Any("err", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	raw := r.URL.Query().Get("format")
	if strings.TrimSpace(raw) == "" {
		raw = string(exporter.FormatHTML)
	}
	format, err := exporter.ParseFormat(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.ExportPost(ctx, id, format, &buf); err != nil {
		if errors.Is(err, content.ErrNotFound) {
			s.handleNotFound(w, r)
			return
		}
		s.logger.ErrorContext(ctx, "export failed", slog.Any("err", err), slog.String("id", id), slog.String("format", string(format)))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	filename := id + exporter.FileExtension(format)
	w.Header().Set("Content-Type", exporter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = buf.WriteTo(w)
}

func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := openBrowser(ctx, url); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
