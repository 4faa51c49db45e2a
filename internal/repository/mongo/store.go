// Package mongo implements the repository interfaces on MongoDB.
// Multi-document transactions require a replica set deployment.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"telegram-image-bot/internal/repository"
)

// Collection name constants.
const (
	colAccounts     = "users"
	colReferrals    = "referral_codes"
	colCreditCodes  = "credit_codes"
	colTransactions = "transactions"
	colCounters     = "counters"
)

// compile-time interface check
var _ repository.Store = (*Store)(nil)

// Store implements repository.Store using the official MongoDB driver.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a new MongoDB store on the given database.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{client: client, db: db}
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// WithinTx runs fn inside a session transaction. The driver retries fn on
// transient transaction errors, so fn must only touch the store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("mongo: transaction failed: %w", err)
	}
	return nil
}

func (s *Store) accounts() *mongo.Collection     { return s.db.Collection(colAccounts) }
func (s *Store) referrals() *mongo.Collection    { return s.db.Collection(colReferrals) }
func (s *Store) creditCodes() *mongo.Collection  { return s.db.Collection(colCreditCodes) }
func (s *Store) transactions() *mongo.Collection { return s.db.Collection(colTransactions) }
func (s *Store) counters() *mongo.Collection     { return s.db.Collection(colCounters) }

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "role", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colReferrals: {
			// Expired codes are removed by the server as well as by the reaper.
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
			{Keys: bson.D{{Key: "generated_by", Value: 1}}},
		},
		colCreditCodes: {
			{Keys: bson.D{{Key: "generated_by", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
