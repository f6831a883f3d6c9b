// Package web serves the landing page, the browser wizard and the relay
// route from a single mux.
package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"icp-wizard/handler"
)

//go:embed static/index.html.tmpl static/icp.html
var static embed.FS

type landingData struct {
	ContactEmail string
}

type Server struct {
	mux     *http.ServeMux
	logger  *log.Logger
	landing []byte
	wizard  []byte
}

type Option func(*Server) error

// WithContactEmail sets the address behind the landing page's "Book a call"
// link. An empty address hides the link.
func WithContactEmail(email string) Option {
	return func(s *Server) error {
		page, err := renderLanding(landingData{ContactEmail: email})
		if err != nil {
			return err
		}
		s.landing = page
		return nil
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// New mounts relay at handler.Route alongside the static pages.
func New(relay http.Handler, opts ...Option) (*Server, error) {
	if relay == nil {
		return nil, errors.New("web: relay handler must not be nil")
	}
	wizard, err := static.ReadFile("static/icp.html")
	if err != nil {
		return nil, fmt.Errorf("web: read wizard page: %w", err)
	}
	landing, err := renderLanding(landingData{})
	if err != nil {
		return nil, err
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  log.New(io.Discard),
		landing: landing,
		wizard:  wizard,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.mux.Handle(handler.Route, relay)
	s.mux.HandleFunc("GET /{$}", s.page(s.landing))
	s.mux.HandleFunc("GET /icp", s.page(s.wizard))
	s.mux.HandleFunc("GET /healthz", s.healthz)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

func (s *Server) page(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func renderLanding(data landingData) ([]byte, error) {
	tmpl, err := template.ParseFS(static, "static/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("web: parse landing page: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("web: render landing page: %w", err)
	}
	return buf.Bytes(), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
