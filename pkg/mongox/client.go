package mongox

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/danghamo/mongoidentity/pkg/logger"
)

// Client wraps mongo.Client with a database handle and logging.
//
// Collections are created lazily by the server on first write; no schema
// migration or index bootstrapping happens here. Timeouts on individual
// operations are whatever the driver provides — callers pass a context
// and the wrapper does not override driver semantics.
type Client struct {
	*mongo.Client
	database *mongo.Database
	uri      string
	logger   *logger.Logger
}

// Config holds the connection settings for a Client
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// NewClient creates a new MongoDB client from a URI and database name
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI cannot be empty")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database name cannot be empty")
	}

	if log == nil {
		log = logger.GetGlobalLogger()
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	client := &Client{
		Client:   mongoClient,
		database: mongoClient.Database(cfg.Database),
		uri:      cfg.URI,
		logger:   log.WithComponent("mongox"),
	}

	client.logger.Info("MongoDB client connected successfully",
		zap.String("database", cfg.Database),
	)

	return client, nil
}

// Database returns the database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a collection handle in the configured database
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("Closing MongoDB connection")
	return c.Client.Disconnect(ctx)
}

// HealthCheck performs a health check on the MongoDB connection
func (c *Client) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := c.Ping(ctx, readpref.Primary())
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("MongoDB health check failed",
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return err
	}

	c.logger.Debug("MongoDB health check passed",
		zap.Duration("duration", duration),
	)

	return nil
}
