package api

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/danghamo/mongoidentity/internal/api/handlers"
	"github.com/danghamo/mongoidentity/internal/api/middleware"
	"github.com/danghamo/mongoidentity/internal/domain/account"
	"github.com/danghamo/mongoidentity/internal/domain/identity"
	"github.com/danghamo/mongoidentity/internal/events"
	"github.com/danghamo/mongoidentity/pkg/config"
	"github.com/danghamo/mongoidentity/pkg/keygen"
	"github.com/danghamo/mongoidentity/pkg/logger"
	"github.com/danghamo/mongoidentity/pkg/mongox"
)

// Server represents the HTTP server
type Server struct {
	httpServer     *http.Server
	logger         *logger.Logger
	mongoClient    *mongox.Client
	mux            *http.ServeMux
	userStore      *identity.MongoUserStore
	roleStore      *identity.MongoRoleStore
	eventBus       *events.Bus
	authHandler    *handlers.AuthHandler
	userHandler    *handlers.UserHandler
	roleHandler    *handlers.RoleHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewServer creates a new HTTP server wiring stores, services, and handlers
func NewServer(cfg *config.Config, log *logger.Logger, mongoClient *mongox.Client) (*Server, error) {
	mux := http.NewServeMux()
	apiLogger := log.WithComponent("api")

	// Create document stores
	userStore := identity.NewMongoUserStore(mongoClient)
	roleStore := identity.NewMongoRoleStore(mongoClient)

	// Create key generators from configured strategies
	userStrategy, err := keygen.ParseStrategy(cfg.Identity.UserKeyStrategy)
	if err != nil {
		return nil, err
	}
	roleStrategy, err := keygen.ParseStrategy(cfg.Identity.RoleKeyStrategy)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	userKeys := keygen.NewGenerator(userStrategy, rng)
	roleKeys := keygen.NewGenerator(roleStrategy, rng)

	// Create event bus
	eventBus := events.NewBus(log)

	// Create account service
	accounts := account.NewService(
		userStore,
		roleStore,
		userKeys,
		roleKeys,
		cfg.Identity,
		eventBus,
		log,
	)

	// Create JWT service
	jwtService := account.NewJWTService(
		cfg.Auth.JWTSecret,
		cfg.Auth.Issuer,
		cfg.Auth.JWTExpiration,
	)

	// Create auth middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, apiLogger)

	server := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.GetServerAddr(),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:         apiLogger,
		mongoClient:    mongoClient,
		mux:            mux,
		userStore:      userStore,
		roleStore:      roleStore,
		eventBus:       eventBus,
		authHandler:    handlers.NewAuthHandler(apiLogger, accounts, jwtService),
		userHandler:    handlers.NewUserHandler(apiLogger, accounts),
		roleHandler:    handlers.NewRoleHandler(apiLogger, accounts, roleStore),
		authMiddleware: authMiddleware,
	}

	server.setupRoutes()
	server.setupMiddleware()

	return server, nil
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.mux.HandleFunc("/health", s.healthCheckHandler)

	// Swagger documentation endpoint
	s.mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Auth endpoints (no auth required)
	s.mux.HandleFunc("/api/v1/auth.Register", s.authHandler.HandleRegister)
	s.mux.HandleFunc("/api/v1/auth.Login", s.authHandler.HandleLogin)
	s.mux.HandleFunc("/api/v1/auth.Refresh", s.authHandler.HandleRefresh)

	// Password change (JWT auth required)
	s.mux.Handle("/api/v1/auth.ChangePassword", s.authMiddleware.RequireAuth(http.HandlerFunc(s.authHandler.HandleChangePassword)))

	// User endpoints (JWT auth required)
	s.mux.Handle("/api/v1/user.Me", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleMe)))
	s.mux.Handle("/api/v1/user.Patch", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandlePatch)))
	s.mux.Handle("/api/v1/user.Roles", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleRoles)))
	s.mux.Handle("/api/v1/user.AddRole", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleAddRole)))
	s.mux.Handle("/api/v1/user.RemoveRole", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleRemoveRole)))
	s.mux.Handle("/api/v1/user.AddClaim", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleAddClaim)))
	s.mux.Handle("/api/v1/user.RemoveClaim", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleRemoveClaim)))
	s.mux.Handle("/api/v1/user.SetToken", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleSetToken)))
	s.mux.Handle("/api/v1/user.RemoveToken", s.authMiddleware.RequireAuth(http.HandlerFunc(s.userHandler.HandleRemoveToken)))

	// Role endpoints (JWT auth required)
	s.mux.Handle("/api/v1/role.Create", s.authMiddleware.RequireAuth(http.HandlerFunc(s.roleHandler.HandleCreate)))
	s.mux.Handle("/api/v1/role.Get", s.authMiddleware.RequireAuth(http.HandlerFunc(s.roleHandler.HandleGet)))
	s.mux.Handle("/api/v1/role.AddClaim", s.authMiddleware.RequireAuth(http.HandlerFunc(s.roleHandler.HandleAddClaim)))
	s.mux.Handle("/api/v1/role.RemoveClaim", s.authMiddleware.RequireAuth(http.HandlerFunc(s.roleHandler.HandleRemoveClaim)))
}

// setupMiddleware applies middleware to all routes
func (s *Server) setupMiddleware() {
	middlewareChain := middleware.Chain(
		middleware.RateLimit(s.logger),
		middleware.Recovery(s.logger),
		middleware.CORS(),
		middleware.Logging(s.logger),
	)

	s.httpServer.Handler = middlewareChain(s.mux)
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server, disposing the stores and
// closing the event bus
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown error", zap.Error(err))
		return err
	}

	s.userStore.Dispose()
	s.roleStore.Dispose()

	if err := s.eventBus.Close(); err != nil {
		s.logger.Error("Event bus shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	return s.httpServer.Addr
}

// healthCheckHandler handles health check requests
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.mongoClient.HealthCheck(r.Context()); err != nil {
		s.logger.Error("MongoDB health check failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"unhealthy","checks":{"mongo":{"status":"down","error":%q}}}`, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","checks":{"mongo":{"status":"up"}}}`))
}
