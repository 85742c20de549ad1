// Package server is the composition root: it opens the database, builds
// the services and handlers, mounts them on a chi router and runs the HTTP
// server until SIGINT or SIGTERM.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → sqlite.DB (implements every repository interface)
//	  → services (auth, links, profile, social, public, analytics)
//	  → handlers
//	  → routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services, and nothing below this package knows
// how the others were constructed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/linkbio/internal/auth"
	"github.com/sakif/linkbio/internal/config"
	"github.com/sakif/linkbio/internal/handler"
	"github.com/sakif/linkbio/internal/metrics"
	"github.com/sakif/linkbio/internal/middleware"
	sqliteRepo "github.com/sakif/linkbio/internal/repository/sqlite"
	"github.com/sakif/linkbio/internal/service"
	"github.com/sakif/linkbio/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and every resource that must be released on
// shutdown: the database pool and, when configured, the redis client.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client
	metrics *metrics.Metrics
}

// New wires the whole application from cfg. The caller must call Start
// (which closes everything on return) or Close.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === DATABASE ===
	if err := ensureDataDir(cfg.Database.URL); err != nil {
		return nil, err
	}
	db, err := sqliteRepo.New(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	// === REDIS (optional) ===
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("server: parsing REDIS_URL: %w", err)
		}
		s.redis = redis.NewClient(opts)
	}

	if err := s.setupRoutes(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// ensureDataDir creates the parent directory of a local database file.
func ensureDataDir(dsn string) error {
	if dsn == ":memory:" || strings.Contains(dsn, "://") {
		return nil
	}
	dir := filepath.Dir(strings.TrimPrefix(dsn, "file:"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("server: creating database directory %s: %w", dir, err)
	}
	return nil
}

// Handler exposes the router, mainly for end-to-end tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes builds every service and handler and mounts them.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz, /metrics
//	GET  /auth/github/login, /auth/github/callback      (when configured)
//	     /api/auth/...                                   signup, login, logout, me, handle check
//	     /api/public/...                                 page data, view and click beacons
//	     /api/links, /api/profile, /api/social, /api/analytics   (auth required)
//	GET  /{handle}                                       server-rendered public page
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so every later log line carries it; RealIP before
// anything that reads the client address (logger, rate limiter, tracking);
// Recoverer last so it wraps the handlers directly.
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	// === Collaborators ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	var avatars storage.AvatarStore = storage.DataURLStore{}
	if cfg.Storage.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage.S3Region, cfg.Storage.S3Bucket, cfg.Storage.S3PublicBaseURL)
		if err != nil {
			return err
		}
		avatars = s3Store
	}

	var github auth.GitHubAuthenticator
	if cfg.Auth.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
	} else {
		s.logger.Warn("GitHub OAuth not configured; /auth/github routes are disabled")
	}

	var limiter middleware.Limiter
	if s.redis != nil {
		limit, window := middleware.WindowFor(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		limiter = middleware.NewRedisLimiter(s.redis, "linkbio:ratelimit", limit, window)
	} else {
		limiter = middleware.NewLocalLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	// === Services ===
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	linkService := service.NewLinkService(s.db, s.metrics, s.logger)
	profileService := service.NewProfileService(s.db, avatars, cfg.Storage.MaxAvatarBytes, s.logger)
	socialService := service.NewSocialService(s.db)
	analyticsService := service.NewAnalyticsService(s.db, s.db)
	publicService := service.NewPublicService(service.PublicDeps{
		Users:       s.db,
		Links:       s.db,
		Icons:       s.db,
		Events:      s.db,
		Salt:        cfg.Tracking.IPHashSalt,
		DedupWindow: cfg.Tracking.DedupWindow,
		Metrics:     s.metrics,
		Logger:      s.logger,
	})

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, github, handler.AuthHandlerConfig{
		TokenTTL:     tokens.TTL(),
		SecureCookie: cfg.Auth.CookieSecure,
	}, s.logger)
	linkHandler := handler.NewLinkHandler(linkService, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	socialHandler := handler.NewSocialHandler(socialService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	publicHandler := handler.NewPublicHandler(publicService, s.logger)
	pageHandler, err := handler.NewPageHandler(publicService, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	s.router.Use(chimiddleware.Recoverer)

	// === Operational ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	requireAuth := auth.RequireAuth(tokens)
	limit := func(name string) func(http.Handler) http.Handler {
		return middleware.RateLimit(limiter, name, s.metrics, s.logger)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit("auth")).Post("/signup", authHandler.HandleSignup)
			r.With(limit("auth")).Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/handle/{handle}", authHandler.HandleCheckHandle)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)
		})

		r.Route("/public", func(r chi.Router) {
			r.Use(limit("public"))
			r.Get("/profile/{handle}", publicHandler.HandleProfile)
			r.Post("/profile/{handle}/view", publicHandler.HandleView)
			r.Post("/click/{linkId}", publicHandler.HandleClick)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/links", func(r chi.Router) {
				r.Get("/", linkHandler.HandleList)
				r.Post("/", linkHandler.HandleCreate)
				r.Get("/deleted", linkHandler.HandleListDeleted)
				r.Post("/reorder", linkHandler.HandleReorder)
				r.Put("/{id}", linkHandler.HandleUpdate)
				r.Delete("/{id}", linkHandler.HandleDelete)
				r.Post("/{id}/restore", linkHandler.HandleRestore)
				r.Delete("/{id}/permanent", linkHandler.HandleDeletePermanently)
			})

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.HandleGet)
				r.Put("/", profileHandler.HandleUpdate)
				r.Post("/avatar", profileHandler.HandleUploadAvatar)
			})

			r.Route("/social", func(r chi.Router) {
				r.Get("/", socialHandler.HandleList)
				r.Post("/", socialHandler.HandleCreate)
				r.Post("/reorder", socialHandler.HandleReorder)
				r.Put("/{id}", socialHandler.HandleUpdate)
				r.Delete("/{id}", socialHandler.HandleDelete)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/summary", analyticsHandler.HandleSummary)
				r.Get("/links", analyticsHandler.HandleLinks)
				r.Get("/daily", analyticsHandler.HandleDaily)
			})
		})
	})

	s.router.With(limit("public")).Get("/{handle}", pageHandler.HandlePage)

	return nil
}

// handleHealth reports 200 when the database answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}` + "\n"))
		return
	}
	w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// Close releases the database and redis connections.
func (s *Server) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	return s.db.Close()
}

// Start runs the HTTP server and blocks until it fails or a shutdown
// signal arrives.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.PublicURL),
			slog.Bool("redis", s.redis != nil),
			slog.Bool("s3", s.config.Storage.S3Bucket != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
