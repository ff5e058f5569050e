// Package server provides a small read-only HTTP API with bot stats, recent moderation actions
// and prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umputun/tg-rspamd/app/learning"
	"github.com/umputun/tg-rspamd/app/panel"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/trust"
)

//go:generate moq --out mocks/actions.go --pkg mocks --with-resets --skip-ensure . Actions
//go:generate moq --out mocks/chats.go --pkg mocks --with-resets --skip-ensure . Chats
//go:generate moq --out mocks/bayes.go --pkg mocks --with-resets --skip-ensure . Bayes
//go:generate moq --out mocks/neural.go --pkg mocks --with-resets --skip-ensure . Neural
//go:generate moq --out mocks/trust.go --pkg mocks --with-resets --skip-ensure . Trust
//go:generate moq --out mocks/panel.go --pkg mocks --with-resets --skip-ensure . Panel

const (
	defaultActionsLimit = 50
	maxActionsLimit     = 1000
)

// Server is a REST API server
type Server struct {
	Config
}

// Config defines server parameters and data sources
type Config struct {
	Version    string // version to show in app info
	ListenAddr string // listen address
	AuthPasswd string // basic auth password for user "tg-rspamd", no auth if empty
	RateLimit  float64

	Actions Actions
	Chats   Chats
	Bayes   Bayes
	Neural  Neural
	Trust   Trust
	Panel   Panel
}

// Actions is a log of moderation decisions
type Actions interface {
	Recent(ctx context.Context, limit int) ([]storage.ActionEntry, error)
}

// Chats provides per-chat counters
type Chats interface {
	ChatStats(ctx context.Context, chatID int64) (map[string]string, error)
}

// Bayes provides bayes classifier state
type Bayes interface {
	Info(ctx context.Context) (learning.BayesInfo, error)
}

// Neural provides neural network training state
type Neural interface {
	Stats(ctx context.Context) (learning.NeuralStats, error)
}

// Trust provides trusted messages stats
type Trust interface {
	Stats(ctx context.Context) (trust.Stats, error)
}

// Panel provides admin panel status
type Panel interface {
	Status(ctx context.Context) (panel.Status, error)
}

// NewServer makes REST API server
func NewServer(cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	return &Server{Config: cfg}
}

// Run starts REST API server, blocks until ctx canceled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] start server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	lmt := tollbooth.NewLimiter(s.RateLimit, nil)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})

	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.AppInfo("tg-rspamd", "umputun", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(lmt))
	router.Use(rest.SizeLimit(64 * 1024))

	router.Handle("GET /metrics", promhttp.Handler())

	router.Group().Route(func(api *routegroup.Bundle) {
		if s.AuthPasswd != "" {
			api.Use(rest.BasicAuthWithUserPasswd("tg-rspamd", s.AuthPasswd))
		}
		api.HandleFunc("GET /api/stats", s.statsHandler)
		api.HandleFunc("GET /api/actions", s.actionsHandler)
		api.HandleFunc("GET /api/chats/{id}", s.chatHandler)
	})
	return router
}

// GET /api/stats returns bayes, neural and trust stats with panel status
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bayes, err := s.Bayes.Info(ctx)
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, err, "can't get bayes stats")
		return
	}
	neural, err := s.Neural.Stats(ctx)
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, err, "can't get neural stats")
		return
	}
	trusted, err := s.Trust.Stats(ctx)
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, err, "can't get trust stats")
		return
	}
	status, err := s.Panel.Status(ctx)
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, err, "can't get panel status")
		return
	}
	rest.RenderJSON(w, rest.JSON{"bayes": bayes, "neural": neural, "trust": trusted, "panel": status.String()})
}

// GET /api/actions?limit=N returns recent moderation decisions, newest first
func (s *Server) actionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultActionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			s.sendError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v), "bad request")
			return
		}
		limit = min(l, maxActionsLimit)
	}
	entries, err := s.Actions.Recent(r.Context(), limit)
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, err, "can't get actions")
		return
	}
	if entries == nil {
		entries = []storage.ActionEntry{}
	}
	rest.RenderJSON(w, entries)
}

// GET /api/chats/{id} returns counters of the chat
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, r, http.StatusBadRequest, err, "invalid chat id")
		return
	}
	stats, err := s.Chats.ChatStats(r.Context(), chatID)
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, err, "can't get chat stats")
		return
	}
	if len(stats) == 0 {
		s.sendError(w, r, http.StatusNotFound, fmt.Errorf("chat %d not found", chatID), "not found")
		return
	}
	rest.RenderJSON(w, rest.JSON{"chat_id": chatID, "stats": stats})
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, code int, err error, msg string) {
	if code >= http.StatusInternalServerError {
		log.Printf("[WARN] %s %s: %s, %v", r.Method, r.URL.Path, msg, err)
	}
	w.WriteHeader(code)
	rest.RenderJSON(w, rest.JSON{"error": msg, "details": err.Error()})
}
