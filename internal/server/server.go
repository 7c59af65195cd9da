// Package server provides the HTTP API for writing prompts and generation
// jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/server/middleware"
	"github.com/jonathan/ink-prompts/internal/server/ratelimit"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/rs/zerolog"
)

// Store is the persistence the HTTP layer needs.
type Store interface {
	PromptStore
	middleware.UserResolver
	Ping(ctx context.Context) error
}

// Generator is the job orchestration the HTTP layer drives.
type Generator interface {
	GeneratePrompts(ctx context.Context, userID uuid.UUID) (*types.Job, error)
	RegeneratePrompts(ctx context.Context, userID uuid.UUID) (*types.Job, error)
	GetJobStatus(ctx context.Context, userID, jobID uuid.UUID) (*types.JobStatusView, error)
	CancelJob(ctx context.Context, userID, jobID uuid.UUID) (*types.Job, error)
	RunDailyGenerationForAllUsers(ctx context.Context) (types.DailyRunResult, error)
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	CronSecret      string
	// DevMode tolerates a missing cron secret.
	DevMode bool
	// EventPollInterval is how often the job event stream re-reads status.
	EventPollInterval time.Duration
}

// Deps are the collaborators the server is built from.
type Deps struct {
	Store       Store
	Generator   Generator
	JWT         *JWTService
	RateLimiter *ratelimit.Limiter
	Logger      *zerolog.Logger
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	cfg         Config
	store       Store
	generator   Generator
	prompts     *PromptService
	jwtService  *JWTService
	rateLimiter *ratelimit.Limiter
	logger      zerolog.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	if cfg.EventPollInterval <= 0 {
		cfg.EventPollInterval = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router:      chi.NewRouter(),
		cfg:         cfg,
		store:       deps.Store,
		generator:   deps.Generator,
		prompts:     NewPromptService(deps.Store),
		jwtService:  deps.JWT,
		rateLimiter: deps.RateLimiter,
		logger:      logging.OrNop(deps.Logger).With().Str("component", "http").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(s.withLogging)
	s.router.Use(chimw.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// Cron callers authenticate with the shared secret, not a user token.
	s.router.Get("/cron/generate-prompts", s.handleCronGenerate)
	s.router.Post("/cron/generate-prompts", s.handleCronGenerate)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.jwtService.AsTokenValidator(), s.store))
		r.Use(s.withRateLimit)

		r.Route("/prompts", func(r chi.Router) {
			r.Post("/", s.handleGeneratePrompts)
			r.Get("/", s.handleListPrompts)
			r.Post("/refresh", s.handleRefreshPrompts)

			r.Get("/job/{jobId}", s.handleGetJob)
			r.Delete("/job/{jobId}", s.handleCancelJob)
			r.Get("/job/{jobId}/events", s.handleJobEvents)

			r.Get("/{id}", s.handleGetPrompt)
			r.Delete("/{id}", s.handleDeletePrompt)
			r.Post("/{id}/use", s.handleUsePrompt)
			r.Post("/{id}/dismiss", s.handleDismissPrompt)
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("server starting")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

// withLogging logs one line per request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

// withRateLimit limits generation endpoints per authenticated user.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientID := r.RemoteAddr
		if userID, err := middleware.GetUserID(r); err == nil {
			clientID = userID.String()
		}

		allowed, info := s.rateLimiter.Allow(clientID, trimSlash(r.URL.Path), r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		}
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func trimSlash(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	retry := int(info.RetryAfter.Seconds())
	if info.RetryAfter > 0 && retry == 0 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	s.logger.Warn().Int("limit", info.Limit).Dur("retry_after", info.RetryAfter).Msg("rate limit exceeded")
	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":      "rate_limit_exceeded",
		"message":    "Rate limit exceeded. Please try again later.",
		"retryAfter": retry,
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// handleError maps err to a status. Internal errors are logged and hidden.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request failed")
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}
