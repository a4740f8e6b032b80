package config

import (
	"fmt"

	"github.com/danghamo/mongoidentity/pkg/logger"
)

// Initialize loads configuration and sets up the global logger.
//
// It must run once at process startup, before any store is constructed;
// nothing else in the codebase performs lazy configuration.
func Initialize() (*Config, *logger.Logger, error) {
	cfg, err := Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerCfg := logger.Config{
		Level:       logger.ParseLevel(cfg.Log.Level),
		Environment: cfg.Log.Environment,
		Encoding:    cfg.Log.Encoding,
	}

	appLogger, err := logger.New(loggerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.SetGlobalLogger(appLogger)

	appLogger.WithFields(map[string]interface{}{
		"environment":  cfg.Server.Environment,
		"server_port":  cfg.Server.Port,
		"mongo_db":     cfg.Mongo.Database,
		"log_level":    cfg.Log.Level,
		"log_encoding": cfg.Log.Encoding,
	}).Info("Configuration and logger initialized successfully")

	return cfg, appLogger, nil
}

// MustInitialize is like Initialize but panics on error
func MustInitialize() (*Config, *logger.Logger) {
	cfg, appLogger, err := Initialize()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize application: %v", err))
	}
	return cfg, appLogger
}
