package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/danghamo/mongoidentity/internal/api"
	"github.com/danghamo/mongoidentity/pkg/config"
	"github.com/danghamo/mongoidentity/pkg/mongox"
)

func main() {
	// Initialize configuration and logger
	cfg, log, err := config.Initialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Ensure logger is flushed on exit
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting identity server",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Server.Environment),
	)

	// Initialize MongoDB client. MONGO_URL overrides the configured URI
	// so local runs and CI can point at throwaway instances.
	mongoURI := cfg.Mongo.URI
	if url := os.Getenv("MONGO_URL"); url != "" {
		mongoURI = url
	}

	mongoClient, err := mongox.NewClient(mongox.Config{
		URI:            mongoURI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize MongoDB client", zap.Error(err))
	}
	defer mongoClient.Close(context.Background())

	// Create API server
	apiServer, err := api.NewServer(cfg, log, mongoClient)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		cancel()
	}()

	// Start server
	if err := apiServer.Start(ctx); err != nil {
		log.Error("Server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server gracefully stopped")
}
