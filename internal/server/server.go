package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/cliphub/apiserver/config"
	"github.com/cliphub/apiserver/internal/db"
	"github.com/cliphub/apiserver/internal/events"
	"github.com/cliphub/apiserver/internal/handlers"
	"github.com/cliphub/apiserver/internal/services"
	"github.com/cliphub/apiserver/internal/storage"
	"github.com/cliphub/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *events.Bus
	logger     *zap.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := services.NewTokenManager(cfg.JWT)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objectStore, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure media bucket: %w", err)
	}

	publisher, err := events.NewPublisherFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	bus := events.NewBus(publisher, logger)

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, tokens)
	mediaService := services.NewMediaService(objectStore, logger)

	authMiddleware := handlers.RequireAuth(tokens)
	authHandler := handlers.NewAuthHandler(userService, authService, mediaService, tokens, bus)
	userHandler := handlers.NewUserHandler(userService, mediaService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authMiddleware)
		handlers.ProfileRouter(r, userHandler, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = s.logger.Sync()
	return s.httpServer.Close()
}
