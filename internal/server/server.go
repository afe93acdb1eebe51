// Package server exposes a data store over HTTP.
//
// Routes:
//
//	POST   /objects?name=&path=   store the request body, returns {"uid","url"}
//	GET    /objects/{uid}         fetch a stored item
//	DELETE /objects/{uid}         remove a stored item
//	GET    /urls/{uid}?expires=   URL for an item; expires is a unix time
//	GET    /metrics               Prometheus metrics, when enabled
//
// Item metadata travels as JSON in the X-Content-Meta header.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/contentstore/internal/config"
	"github.com/koustreak/contentstore/internal/datastore"
	"github.com/koustreak/contentstore/internal/logger"
)

// MetaHeader carries item metadata as JSON on requests and responses.
const MetaHeader = "X-Content-Meta"

// maxBodySize caps uploaded payloads (32MB).
const maxBodySize = 32 << 20

// Server serves a DataStore over HTTP.
type Server struct {
	cfg      config.ServerConfig
	store    datastore.DataStore
	log      *logger.Logger
	gatherer prometheus.Gatherer
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a server for store. It does not start listening.
func New(cfg config.ServerConfig, store datastore.DataStore, log *logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.Global()
	}
	s := &Server{cfg: cfg, store: store, log: log}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Post("/objects", s.handleWrite)
	r.Get("/objects/*", s.handleRead)
	r.Delete("/objects/*", s.handleDestroy)
	r.Get("/urls/*", s.handleURL)

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.InfoWith("http server listening", map[string]interface{}{"addr": s.cfg.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, up to the
// configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.HTTPEvent().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
