// Package api serves the chat hub over HTTP: the BYOM endpoints, the
// conversation endpoints, the websocket relay and the built web client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/chathub/internal/byom"
	"github.com/MikeSquared-Agency/chathub/internal/relay"
	"github.com/MikeSquared-Agency/chathub/internal/summarize"
)

// Deps are the components the server routes to. BYOM and Summarizer are
// optional.
type Deps struct {
	Relay      *relay.Relay
	BYOM       *byom.Service
	Summarizer *summarize.Summarizer
	// StaticDir holds the built web client; empty disables static serving.
	StaticDir string
	// SaaSBaseURL, when set, receives every /api/* request instead of the
	// in-process BYOM routes.
	SaaSBaseURL string
	Logger      *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func NewServer(port int, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: logger.With("component", "api"),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	router.Get("/health", s.health)
	router.Get("/socket", s.serveSocket)

	router.Post("/message", s.postMessage)
	router.Get("/conversations/{id}/messages", s.conversationMessages)
	router.Get("/conversations/{id}/summary", s.conversationSummary)

	if deps.BYOM != nil {
		s.mountBYOM(router)
	}

	if deps.SaaSBaseURL != "" {
		proxy, err := newSaaSProxy(deps.SaaSBaseURL)
		if err != nil {
			return nil, err
		}
		router.Handle("/api/*", http.StripPrefix("/api", proxy))
		s.logger.Info("proxying /api to SaaS", "base_url", deps.SaaSBaseURL)
	} else if deps.BYOM != nil {
		router.Route("/api", s.mountBYOM)
	}

	if deps.StaticDir != "" {
		router.NotFound(spaHandler(deps.StaticDir))
	}

	return s, nil
}

func (s *Server) mountBYOM(r chi.Router) {
	r.Post("/register-provider", s.registerProvider)
	r.Post("/chat", s.chat)
	r.Get("/providers/{userId}", s.getProvider)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newSaaSProxy(base string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(base)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid SAAS_BASE_URL %q", base)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Warn("saas proxy failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
