package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// ==================== Account Store ====================

// GetAccount loads the account document or returns ErrAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	var m accountModel
	err := s.accounts().FindOne(ctx, bson.M{"_id": userID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, fmt.Errorf("mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

// CreateAccount inserts acc; a duplicate key becomes ErrAccountExists.
func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	now := time.Now().UTC()
	m := toAccountModel(acc)
	m.CreatedAt = now
	m.UpdatedAt = now

	if _, err := s.accounts().InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, repository.ErrAccountExists
		}
		return nil, fmt.Errorf("mongo: create account: %w", err)
	}
	return fromAccountModel(m), nil
}

// updateAccount applies update to one account and returns the new document.
func (s *Store) updateAccount(ctx context.Context, userID int64, update bson.M) (*model.Account, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m accountModel
	err := s.accounts().FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(&m), nil
}

// AdjustCredits applies $inc to total_credits and returns the updated account.
func (s *Store) AdjustCredits(ctx context.Context, userID, delta int64) (*model.Account, error) {
	acc, err := s.updateAccount(ctx, userID, bson.M{
		"$inc": bson.M{"total_credits": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("mongo: adjust credits: %w", err)
	}
	return acc, nil
}

// SpendCredit decrements total_credits only while it is positive.
func (s *Store) SpendCredit(ctx context.Context, userID int64) (bool, error) {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": userID, "total_credits": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"total_credits": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: spend credit: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// RollDailyCounterIfStale zeroes the daily counter when LastReset is not today.
func (s *Store) RollDailyCounterIfStale(ctx context.Context, userID int64, today string) (bool, error) {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": userID, "last_reset": bson.M{"$ne": today}},
		bson.M{"$set": bson.M{
			"daily_count": 0,
			"last_reset":  today,
			"updated_at":  time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: roll daily counter: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// IncrementDailyCount counts one generation against today's quota.
func (s *Store) IncrementDailyCount(ctx context.Context, userID int64) (*model.Account, error) {
	acc, err := s.updateAccount(ctx, userID, bson.M{
		"$inc": bson.M{"daily_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("mongo: increment daily count: %w", err)
	}
	return acc, nil
}

// SetRole upserts the role; the seed fields are written only on insert.
func (s *Store) SetRole(ctx context.Context, seed *model.Account) error {
	now := time.Now().UTC()
	_, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": seed.UserID},
		bson.M{
			"$set": bson.M{"role": string(seed.Role), "updated_at": now},
			"$setOnInsert": bson.M{
				"username":             seed.Username,
				"daily_count":          int64(0),
				"total_credits":        seed.TotalCredits,
				"last_reset":           seed.LastReset,
				"has_claimed_referral": false,
				"created_at":           now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: set role: %w", err)
	}
	return nil
}

// UpdateRole changes the role of an existing account.
func (s *Store) UpdateRole(ctx context.Context, userID int64, role model.Role) error {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"role": string(role), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongo: update role: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

// MarkReferralClaimed flips has_claimed_referral from false and reports whether it matched.
func (s *Store) MarkReferralClaimed(ctx context.Context, userID int64) (bool, error) {
	// $ne also matches documents written before the flag existed
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": userID, "has_claimed_referral": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"has_claimed_referral": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo: mark referral claimed: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// UpdateUsername stores the latest Telegram username.
func (s *Store) UpdateUsername(ctx context.Context, userID int64, username string) error {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"username": username, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongo: update username: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

// ListAccounts returns a summary of every account.
func (s *Store) ListAccounts(ctx context.Context) ([]model.AccountSummary, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "username": 1, "role": 1}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.accounts().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list accounts: %w", err)
	}

	var models []accountModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: decode accounts: %w", err)
	}

	result := make([]model.AccountSummary, 0, len(models))
	for i := range models {
		acc := fromAccountModel(&models[i])
		result = append(result, model.AccountSummary{UserID: acc.UserID, Username: acc.Username, Role: acc.Role})
	}
	return result, nil
}

// CountByRole groups accounts by role.
func (s *Store) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$role"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.accounts().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo: count by role: %w", err)
	}

	var rows []struct {
		Role  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: decode role counts: %w", err)
	}

	counts := make(map[model.Role]int64, len(rows))
	for _, r := range rows {
		counts[model.Role(r.Role)] += r.Count
	}
	return counts, nil
}
