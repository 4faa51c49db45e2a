package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"telegram-image-bot/internal/model"
)

// ==================== Transaction Store ====================

// nextSequence returns a monotonically increasing id for the named counter.
func (s *Store) nextSequence(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters().FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// CreateTransaction inserts a credit log entry.
func (s *Store) CreateTransaction(ctx context.Context, userID, amount int64, txType string, description *string) (*model.Transaction, error) {
	id, err := s.nextSequence(ctx, colTransactions)
	if err != nil {
		return nil, fmt.Errorf("mongo: allocate transaction id: %w", err)
	}

	m := &transactionModel{
		ID:          id,
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.transactions().InsertOne(ctx, m); err != nil {
		return nil, fmt.Errorf("mongo: create transaction: %w", err)
	}
	return fromTransactionModel(m), nil
}

// ListTransactions returns the newest entries of a user, at most limit.
func (s *Store) ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.transactions().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list transactions: %w", err)
	}

	var models []transactionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: decode transactions: %w", err)
	}

	result := make([]*model.Transaction, 0, len(models))
	for i := range models {
		result = append(result, fromTransactionModel(&models[i]))
	}
	return result, nil
}

// CountTransactionsSince counts entries of txType created at or after since.
func (s *Store) CountTransactionsSince(ctx context.Context, txType string, since time.Time) (int64, error) {
	n, err := s.transactions().CountDocuments(ctx, bson.M{
		"type":       txType,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo: count transactions: %w", err)
	}
	return n, nil
}
