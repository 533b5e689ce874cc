// Package server exposes the resolver state over HTTP and relays content
// requests to the gateway, so browsers can use path relative /bytes/ URLs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/otofune/hlsfeed"
	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/resolver"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	ListenAddr string
	// Gateway receives relayed content requests.
	Gateway    *url.URL
	PathPrefix string
	State      *resolver.State
	Logger     ctxlogger.Logger
}

type Server struct {
	cfg    Config
	http   *http.Server
	router chi.Router

	mu     sync.RWMutex
	source *hlsfeed.Source
}

func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("server: gateway is required")
	}
	if cfg.State == nil {
		return nil, errors.New("server: state is required")
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = resolver.DefaultPathPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = ctxlogger.NewDummyLogger()
	}

	s := &Server{cfg: cfg}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	relay := httputil.NewSingleHostReverseProxy(s.cfg.Gateway)
	relay.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.cfg.Logger.Errorf("relay %s: %v", r.URL.Path, err)
		http.Error(w, "gateway unavailable", http.StatusBadGateway)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	r.Get("/player.json", s.handlePlayer)
	r.Get("/live.m3u8", s.handleLive)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle(s.cfg.PathPrefix+"*", relay)
	return r
}

// SetSource publishes what the player is playing.
func (s *Server) SetSource(src hlsfeed.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = &src
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.State.Status())
}

func (s *Server) handlePlayer(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	src := s.source
	s.mu.RUnlock()
	if src == nil {
		http.Error(w, "playback not started", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	current := s.cfg.State.URL()
	if current == "" {
		http.Error(w, "manifest not resolved yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, current, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.cfg.Logger.Printf("listening on %s", s.cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
