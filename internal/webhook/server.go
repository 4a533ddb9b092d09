package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Path is where Telegram delivers updates
const Path = "/telegram/webhook"

// SecretHeader carries the secret token given to SetWebhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves Telegram webhook updates and a health endpoint
type Server struct {
	updates http.Handler
	db      Pinger
	secret  string
	log     *slog.Logger

	server *http.Server
}

// NewServer creates a new webhook server. updates may be nil when the bot
// is polling, in which case only the health endpoint is served. A non-empty
// secret is required on every update request.
func NewServer(updates http.Handler, db Pinger, secret string, log *slog.Logger) *Server {
	return &Server{
		updates: updates,
		db:      db,
		secret:  secret,
		log:     log,
	}
}

// Routes builds the HTTP router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.updates != nil {
		r.With(s.requireSecret).Method(http.MethodPost, Path, s.updates)
	}

	return r
}

// Start starts the webhook server
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", "port", port, "webhook", s.updates != nil)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(s.secret)) != 1 {
			s.log.Warn("webhook request with bad secret", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
