// Package server exposes the capture status and embed wrapper endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/oembed"
	"github.com/user/capturedriver/pkg/ports"
)

// Options configures a Server.
type Options struct {
	// Jobs holds the jobs the server reports on. /status and /screenshot
	// describe the most recent one.
	Jobs *capture.Registry
	// Embeds serves /info and /e. Nil disables the embed routes.
	Embeds *oembed.Client
	// Channel serves /api/capture. Nil disables capture requests.
	Channel http.Handler
	Logger  ports.Logger
}

// Server routes the HTTP surface.
type Server struct {
	jobs   *capture.Registry
	embeds *oembed.Client
	logger ports.Logger
	router chi.Router
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Jobs == nil {
		opts.Jobs = capture.NewRegistry(0)
	}
	s := &Server{
		jobs:   opts.Jobs,
		embeds: opts.Embeds,
		logger: opts.Logger.WithComponent("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/screenshot", s.handleScreenshot)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)

	if s.embeds != nil {
		r.Get("/info/*", s.handleInfo)
		r.Get("/e/*", s.handleEmbed)
	}
	if opts.Channel != nil {
		r.Handle("/api/capture", opts.Channel)
	}

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Server shutdown failed: %v", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no capture")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Latest()
	if !ok {
		http.NotFound(w, r)
		return
	}
	png := job.Screenshot()
	if png == nil {
		http.NotFound(w, r)
		return
	}

	if r.URL.Query().Get("thumb") == "1" {
		width := DefaultThumbWidth
		if v, err := strconv.Atoi(r.URL.Query().Get("width")); err == nil && v > 0 {
			width = v
		}
		thumb, err := Thumbnail(png, width)
		if err != nil {
			s.logger.Warn("Failed to scale screenshot: %v", err)
			writeError(w, http.StatusInternalServerError, "invalid screenshot")
			return
		}
		png = thumb
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Snapshots())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleInfo redirects to the provider's metadata lookup for the URL in the path.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	target := wildcardURL(r)
	lookup, ok := s.embeds.InfoURL(target)
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, lookup, http.StatusTemporaryRedirect)
}

// handleEmbed renders the wrapper page around the provider's embed markup.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	target := wildcardURL(r)
	embed, ok, err := s.embeds.Lookup(r.Context(), target)
	if err != nil {
		s.logger.Warn("oEmbed lookup for %s failed: %v", target, err)
	}
	if !ok || embed.Response.HTML == "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(WrapperHTML(embed)))
}

// WrapperHTML renders the element that is screenshotted after interaction.
func WrapperHTML(embed oembed.Embed) string {
	style := ""
	if embed.Response.Width > 0 {
		style += fmt.Sprintf("width: %dpx;", embed.Response.Width)
	}
	if embed.Response.Height > 0 {
		style += fmt.Sprintf("height: %dpx;", embed.Response.Height)
	}
	return fmt.Sprintf(`<div id="embedArchiveDiv" style="%s">%s</div>`, html.EscapeString(style), embed.Response.HTML)
}

// wildcardURL recovers the URL embedded in the request path, including its query.
func wildcardURL(r *http.Request) string {
	target := chi.URLParam(r, "*")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
