// Package mockapi is a local stand-in for the budgeting backend. It serves
// the same endpoints the client calls, issues real HS256 tokens, hashes
// passwords with bcrypt and categorizes expenses with keyword rules.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	applog "budgetwise/internal/log"
	"budgetwise/internal/middleware/ratelimit"
	"budgetwise/internal/middleware/security"
	"budgetwise/internal/middleware/trace"
)

const maxBodyBytes = 1 << 20

type Config struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost; tests lower it.
	BcryptCost int
	// RateLimit is requests per second per client; zero disables it.
	RateLimit float64
	Logger    *applog.Logger
	Now       func() time.Time
}

type Server struct {
	router   chi.Router
	accounts *accounts
	signer   *signer
	limiter  *ratelimit.Limiter
	trace    *trace.Middleware
	logger   *applog.Logger
	now      func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration

	httpServer *http.Server
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = applog.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	logger := cfg.Logger.WithComponent(applog.ComponentMockAPI)
	s := &Server{
		accounts:   newAccounts(cfg.BcryptCost, cfg.Now),
		signer:     &signer{secret: []byte(cfg.JWTSecret), now: cfg.Now},
		trace:      trace.NewMiddleware(logger),
		logger:     logger,
		now:        cfg.Now,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if cfg.RateLimit > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit,
			Burst:             int(cfg.RateLimit * 2),
		})
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.trace.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware(ratelimit.ClientIP, func(w http.ResponseWriter, _ *http.Request) {
			writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/signin", s.handleSignin)
		r.Post("/refresh", s.handleRefresh)
		r.With(s.requireAuth).Get("/me", s.handleMe)
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/me", s.handleProfile)
		r.Put("/personal", s.handleUpdatePersonal)
		r.Put("/preferences", s.handleUpdatePreferences)
	})

	r.Route("/budget", func(r chi.Router) {
		r.Post("/categorize", s.handleCategorize)
		r.Post("/batch-categorize", s.handleBatchCategorize)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found")
	})
	return r
}

// Handler exposes the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed after
// Shutdown is not reported.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("Mock API listening", applog.FieldOperation, applog.OpStartup, "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Mock API shutting down", applog.FieldOperation, applog.OpShutdown)
	return s.httpServer.Shutdown(ctx)
}

type ctxKey string

const userIDKey ctxKey = "user_id"

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		c, err := s.signer.verify(header[len(prefix):], tokenTypeAccess)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, c.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
