package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/expreg-labs/expreg/internal/registry"
)

const shutdownTimeout = 5 * time.Second

// Server serves the registry over HTTP. It never mutates the registry.
type Server struct {
	reg     *registry.Registry
	source  string
	log     *slog.Logger
	metrics *prometheus.Registry
}

// NewServer returns a server for reg. source is reported in /status.
func NewServer(reg *registry.Registry, source string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := prometheus.NewRegistry()
	m.MustRegister(NewCollector(reg), collectors.NewGoCollector())
	return &Server{reg: reg, source: source, log: log, metrics: m}
}

// Handler returns the routes of the status API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /entries", s.handleEntries)
	mux.HandleFunc("GET /entries/{name}", s.handleEntry)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	return mux
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("status server starting", "address", "http://"+ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("status server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, Summarize(s.reg, s.source))
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	state := r.URL.Query().Get("state")
	out := []EntryView{}
	for _, e := range s.reg.Entries() {
		if section != "" && e.SectionTitle() != section {
			continue
		}
		if state != "" && e.State().String() != state {
			continue
		}
		out = append(out, ViewEntry(e))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.reg.Lookup(r.PathValue("name"))
	if err != nil {
		s.writeJSON(w, r, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, ViewEntry(e))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	s.log.Debug("status request", "method", r.Method, "path", r.URL.Path, "code", code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Warn("writing response", "path", r.URL.Path, "error", err)
	}
}
