package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Identity IdentityConfig `mapstructure:"identity"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	Environment     string `mapstructure:"environment"`
	HealthCheckPath string `mapstructure:"health_check_path"`
}

// MongoConfig holds MongoDB-related configuration
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// IdentityConfig holds identity policy settings.
//
// These values are handed through to the account service unchanged; the
// document stores themselves do not interpret them.
type IdentityConfig struct {
	Password        PasswordConfig `mapstructure:"password"`
	Lockout         LockoutConfig  `mapstructure:"lockout"`
	AllowedUserName string         `mapstructure:"allowed_username_characters"`
	UserKeyStrategy string         `mapstructure:"user_key_strategy"` // uuid, randomint, objectid, external
	RoleKeyStrategy string         `mapstructure:"role_key_strategy"`
}

// PasswordConfig holds password complexity requirements
type PasswordConfig struct {
	MinLength      int  `mapstructure:"min_length"`
	RequireDigit   bool `mapstructure:"require_digit"`
	RequireUpper   bool `mapstructure:"require_upper"`
	RequireLower   bool `mapstructure:"require_lower"`
	RequireSpecial bool `mapstructure:"require_special"`
}

// LockoutConfig holds account lockout settings
type LockoutConfig struct {
	MaxAccessFailures int           `mapstructure:"max_access_failures"`
	Duration          time.Duration `mapstructure:"duration"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
	Issuer        string        `mapstructure:"issuer"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
	Encoding    string `mapstructure:"encoding"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/mongoidentity")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file is optional; env vars and defaults are enough
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.health_check_path", "/health")

	// Mongo defaults
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "identity")
	viper.SetDefault("mongo.connect_timeout", "5s")

	// Identity policy defaults
	viper.SetDefault("identity.password.min_length", 8)
	viper.SetDefault("identity.password.require_digit", true)
	viper.SetDefault("identity.password.require_upper", true)
	viper.SetDefault("identity.password.require_lower", true)
	viper.SetDefault("identity.password.require_special", false)
	viper.SetDefault("identity.lockout.max_access_failures", 5)
	viper.SetDefault("identity.lockout.duration", "5m")
	viper.SetDefault("identity.allowed_username_characters",
		"abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+")
	viper.SetDefault("identity.user_key_strategy", "uuid")
	viper.SetDefault("identity.role_key_strategy", "uuid")

	// Auth defaults
	viper.SetDefault("auth.jwt_secret", "dev-jwt-secret-change-in-production")
	viper.SetDefault("auth.jwt_expiration", "24h")
	viper.SetDefault("auth.issuer", "mongoidentity")

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.environment", "development")
	viper.SetDefault("log.encoding", "console")
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if cfg.Mongo.URI == "" {
		return fmt.Errorf("mongo URI cannot be empty")
	}

	if cfg.Mongo.Database == "" {
		return fmt.Errorf("mongo database name cannot be empty")
	}

	if cfg.Identity.Password.MinLength < 1 {
		return fmt.Errorf("password min length must be at least 1")
	}

	if cfg.Identity.Lockout.MaxAccessFailures < 1 {
		return fmt.Errorf("max access failures must be at least 1")
	}

	if cfg.Identity.Lockout.Duration < time.Second {
		return fmt.Errorf("lockout duration must be at least 1 second")
	}

	validStrategies := []string{"uuid", "randomint", "objectid", "external"}
	if !contains(validStrategies, cfg.Identity.UserKeyStrategy) {
		return fmt.Errorf("invalid user key strategy: %s", cfg.Identity.UserKeyStrategy)
	}
	if !contains(validStrategies, cfg.Identity.RoleKeyStrategy) {
		return fmt.Errorf("invalid role key strategy: %s", cfg.Identity.RoleKeyStrategy)
	}

	if len(cfg.Auth.JWTSecret) < 8 {
		return fmt.Errorf("JWT secret must be at least 8 characters long")
	}

	if cfg.Auth.JWTExpiration < time.Minute {
		return fmt.Errorf("JWT expiration must be at least 1 minute")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.Log.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}

	validEncodings := []string{"json", "console"}
	if !contains(validEncodings, cfg.Log.Encoding) {
		return fmt.Errorf("invalid log encoding: %s", cfg.Log.Encoding)
	}

	return nil
}

// GetServerAddr returns the server address in host:port format
func (s *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction returns true if the environment is production
func (s *ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
