package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"telegram-image-bot/internal/config"
)

// Mongo wraps a connected client and the configured database.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongo connects to MongoDB and verifies the connection.
// Transactions require the server to run as a replica set.
func NewMongo(ctx context.Context, cfg *config.MongoConfig) (*Mongo, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}

	log.Info().
		Str("database", cfg.Database).
		Msg("Connecting to MongoDB")

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Info().Msg("Successfully connected to MongoDB")

	return &Mongo{Client: client, Database: client.Database(cfg.Database)}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) {
	if m.Client == nil {
		return
	}
	if err := m.Client.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to disconnect MongoDB")
		return
	}
	log.Info().Msg("MongoDB connection closed")
}
