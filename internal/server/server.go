// Package server is the HTTP dashboard over the CRM pipeline.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/crmlens/internal/config"
	"github.com/KaramelBytes/crmlens/internal/ingest"
	"github.com/KaramelBytes/crmlens/internal/logging"
	"github.com/KaramelBytes/crmlens/internal/metrics"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/report"
	"github.com/KaramelBytes/crmlens/internal/table"
)

// Server serves the upload form, the dashboard and the JSON API.
type Server struct {
	cfg     *config.Global
	log     *slog.Logger
	metrics *metrics.Collector
	router  chi.Router
}

// New builds a server. A nil collector disables /metrics.
func New(cfg *config.Global, log *slog.Logger, m *metrics.Collector) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{cfg: cfg, log: log.With("component", "server"), metrics: m}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/dashboard", s.handleDashboard)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/analyze", s.handleAnalyze)
	})
	return r
}

// requestLogger logs one line per request and counts it.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.Request(route, strconv.Itoa(status))
		}
		s.log.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// analyze reads the upload and runs one isolated pipeline invocation.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) (*pipeline.Result, string, error) {
	raw, name, err := s.readUpload(w, r)
	if err != nil {
		return nil, name, err
	}
	runner := &pipeline.Runner{Config: s.cfg, Logger: s.log, Observer: s.observer()}
	res, err := runner.Run(r.Context(), raw)
	return res, name, err
}

func (s *Server) observer() pipeline.Observer {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

// readUpload accepts a multipart form with a "file" field or a raw body.
// For raw bodies the file name comes from the "name" query parameter.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*table.Table, string, error) {
	limit := s.cfg.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var (
		name string
		body io.Reader
	)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(limit); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, "", err
			}
			return nil, "", fmt.Errorf("parse form: %w", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", errNoUpload
		}
		defer f.Close()
		name = filepath.Base(hdr.Filename)
		body = f
	} else {
		name = filepath.Base(r.URL.Query().Get("name"))
		if name == "." || name == "/" {
			name = ""
		}
		if name == "" {
			name = "upload" + extensionFor(mt)
		}
		body = r.Body
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, name, fmt.Errorf("read upload: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, name, errNoUpload
	}
	t, err := ingest.Read(bytes.NewReader(data), name, s.cfg.IngestOptions())
	return t, name, err
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "text/tab-separated-values":
		return ".tsv"
	default:
		return ".csv"
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	res, name, err := s.analyze(w, r)
	if err != nil {
		s.writeProblem(w, r, err)
		return
	}
	doc := report.NewDocument(res, name)
	if strings.EqualFold(r.URL.Query().Get("anomalies_only"), "true") {
		doc.Records = nil
	}
	render.JSON(w, r, doc)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
