// Package server is the composition root: it builds the store, the auth
// primitives, the services and the handlers from a config.Config, mounts
// them on a chi router and runs the HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → repository.Store (sqlite | postgres | local)
//	  → TokenService, PasswordService, Revoker (redis | memory), Mailer (log | smtp)
//	  → AuthService, ProfileService, AccomplishmentService
//	  → AuthHandler, ProfileHandler, AccomplishmentHandler
//	  → routes
//
// Every layer receives only what it needs, and nothing below this package
// knows which backend it is talking to.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/sakif/accomplo/internal/auth"
	"github.com/sakif/accomplo/internal/config"
	"github.com/sakif/accomplo/internal/handler"
	"github.com/sakif/accomplo/internal/middleware"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
	"github.com/sakif/accomplo/internal/repository/local"
	"github.com/sakif/accomplo/internal/repository/postgres"
	sqliteRepo "github.com/sakif/accomplo/internal/repository/sqlite"
	"github.com/sakif/accomplo/internal/service"
)

// Server owns the router and every long-lived resource (store, Redis
// client). Start closes them on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	redis  *redis.Client // nil when revocation is in memory
}

// New wires the whole application. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// openStore builds the configured backend. Postgres is migrated first.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		if err := postgres.Migrate(ctx, cfg.Storage.PostgresDSN); err != nil {
			return nil, fmt.Errorf("server: migrating postgres: %w", err)
		}
		db, err := postgres.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres: %w", err)
		}
		return db, nil

	case config.BackendLocal:
		st, err := local.New(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("server: opening local store: %w", err)
		}
		return st, nil

	default:
		path := cfg.Storage.SQLitePath
		if path != ":memory:" {
			// 0755 = owner rwx, others r-x
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(path)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite: %w", err)
		}
		return db, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                     liveness
//	POST   /auth/signup                 create account, start session
//	POST   /auth/signin                 start session
//	POST   /auth/signout                revoke token, clear cookie   [auth]
//	POST   /auth/password/reset         mail a recovery link
//	POST   /auth/password/recover       set a password from the link
//	GET    /auth/{provider}/login       OAuth redirect
//	GET    /auth/{provider}/callback    OAuth callback
//	GET    /api/me                      current user                  [auth]
//	PUT    /api/me/password             change password               [auth]
//	GET    /api/profile                 get-or-create profile         [auth]
//	PATCH  /api/profile                 update profile                [auth]
//	GET    /api/accomplishments         list                          [auth]
//	POST   /api/accomplishments         create                        [auth]
//	DELETE /api/accomplishments/{id}    delete                        [auth]
//	GET    /api/weeks                   weekly view with reveal gate  [auth]
//
// MIDDLEWARE ORDER MATTERS: RequestID must run before Logger so the log
// line can carry the ID, and CORS must answer preflights before auth.
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	revoker, err := s.newRevoker(ctx)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(s.store, tokens, auth.NewPasswordService(), revoker, s.newMailer(), cfg.ResetRedirectOrigins(), s.logger)
	profileService := service.NewProfileService(s.store, s.store, s.logger)
	accomplishmentService := service.NewAccomplishmentService(s.store, profileService, time.Now, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.oauthProviders(), handler.CookieConfig{
		TTL:         tokens.TTL(),
		Secure:      cfg.Server.SecureCookies,
		RedirectURL: cfg.Server.AppURL,
	}, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	accomplishmentHandler := handler.NewAccomplishmentHandler(accomplishmentService, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", handler.TimezoneHeader},
		ExposedHeaders:   []string{chimiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	s.router.Use(chimiddleware.Recoverer)

	requireAuth := auth.RequireAuth(tokens, revoker)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/signin", authHandler.HandleSignIn)
		r.With(requireAuth).Post("/signout", authHandler.HandleSignOut)
		r.Post("/password/reset", authHandler.HandleRequestPasswordReset)
		r.Post("/password/recover", authHandler.HandleResetPassword)
		r.Get("/{provider}/login", authHandler.HandleOAuthLogin)
		r.Get("/{provider}/callback", authHandler.HandleOAuthCallback)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/me", authHandler.HandleMe)
		r.Put("/me/password", authHandler.HandleUpdatePassword)

		r.Get("/profile", profileHandler.HandleGet)
		r.Patch("/profile", profileHandler.HandleUpdate)

		r.Get("/accomplishments", accomplishmentHandler.HandleList)
		r.Post("/accomplishments", accomplishmentHandler.HandleCreate)
		r.Delete("/accomplishments/{id}", accomplishmentHandler.HandleDelete)

		r.Get("/weeks", accomplishmentHandler.HandleWeeks)
	})

	return nil
}

// newRevoker uses Redis when REDIS_ADDR is set so sign-outs survive restarts
// and are shared between instances.
func (s *Server) newRevoker(ctx context.Context) (auth.Revoker, error) {
	if s.config.Redis.Addr == "" {
		s.logger.Info("token revocation in memory")
		return auth.NewMemoryRevoker(), nil
	}

	rdb, err := auth.NewRedisClient(ctx, s.config.Redis.Addr, s.config.Redis.Password)
	if err != nil {
		return nil, err
	}
	s.redis = rdb
	s.logger.Info("token revocation in redis", slog.String("addr", s.config.Redis.Addr))
	return auth.NewRedisRevoker(rdb), nil
}

func (s *Server) newMailer() service.Mailer {
	m := s.config.Mail
	if m.Driver == config.MailerSMTP {
		return service.NewSMTPMailer(service.SMTPConfig{
			Host:     m.Host,
			Port:     m.Port,
			Username: m.Username,
			Password: m.Password,
			From:     m.From,
		}, s.logger)
	}
	return service.NewLogMailer(s.logger)
}

// oauthProviders returns the providers that have credentials configured.
func (s *Server) oauthProviders() []*auth.OAuthProvider {
	cfg := s.config
	var providers []*auth.OAuthProvider
	if c := cfg.OAuth.Google; c.Enabled() {
		providers = append(providers, auth.NewGoogleProvider(c.ClientID, c.ClientSecret, cfg.CallbackURL(model.ProviderGoogle)))
	}
	if c := cfg.OAuth.Facebook; c.Enabled() {
		providers = append(providers, auth.NewFacebookProvider(c.ClientID, c.ClientSecret, cfg.CallbackURL(model.ProviderFacebook)))
	}
	if c := cfg.OAuth.GitHub; c.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(c.ClientID, c.ClientSecret, cfg.CallbackURL(model.ProviderGitHub)))
	}
	for _, p := range providers {
		s.logger.Info("oauth provider enabled", slog.String("provider", p.Name()))
	}
	return providers
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// close releases the store and the Redis client.
func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting new connections
//  2. wait up to 30s for in-flight requests
//  3. close the store and Redis client
func (s *Server) Start() error {
	defer s.close()

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
			slog.String("storage", s.config.Storage.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
