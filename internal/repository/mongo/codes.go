package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// ==================== Referral Store ====================

// CreateReferralCode stores rc, returning ErrCodeExists on a duplicate code.
func (s *Store) CreateReferralCode(ctx context.Context, rc *model.ReferralCode) error {
	if _, err := s.referrals().InsertOne(ctx, toReferralModel(rc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrCodeExists
		}
		return fmt.Errorf("mongo: create referral code: %w", err)
	}
	return nil
}

// GetReferralCode returns the referral code or ErrCodeNotFound.
func (s *Store) GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	var m referralModel
	if err := s.referrals().FindOne(ctx, bson.M{"_id": code}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrCodeNotFound
		}
		return nil, fmt.Errorf("mongo: get referral code: %w", err)
	}
	return fromReferralModel(&m), nil
}

// MarkReferralUsed atomically consumes an unused, unexpired referral code.
func (s *Store) MarkReferralUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.ReferralCode, error) {
	filter := bson.M{
		"_id":        code,
		"used":       false,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"used": true, "used_by": usedBy}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m referralModel
	err := s.referrals().FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err == nil {
		return fromReferralModel(&m), nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("mongo: mark referral code used: %w", err)
	}

	current, err := s.GetReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.Used {
		return nil, repository.ErrCodeUsed
	}
	return nil, repository.ErrCodeExpired
}

// PurgeExpiredReferralCodes deletes codes that expired before the given time.
func (s *Store) PurgeExpiredReferralCodes(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.referrals().DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before}})
	if err != nil {
		return 0, fmt.Errorf("mongo: purge referral codes: %w", err)
	}
	return res.DeletedCount, nil
}

// ==================== Credit Code Store ====================

// CreateCreditCode stores cc, returning ErrCodeExists on a duplicate code.
func (s *Store) CreateCreditCode(ctx context.Context, cc *model.CreditCode) error {
	if _, err := s.creditCodes().InsertOne(ctx, toCreditCodeModel(cc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrCodeExists
		}
		return fmt.Errorf("mongo: create credit code: %w", err)
	}
	return nil
}

// GetCreditCode returns the credit code or ErrCodeNotFound.
func (s *Store) GetCreditCode(ctx context.Context, code string) (*model.CreditCode, error) {
	var m creditCodeModel
	if err := s.creditCodes().FindOne(ctx, bson.M{"_id": code}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrCodeNotFound
		}
		return nil, fmt.Errorf("mongo: get credit code: %w", err)
	}
	return fromCreditCodeModel(&m), nil
}

// MarkCreditCodeUsed atomically consumes an unused credit code.
func (s *Store) MarkCreditCodeUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.CreditCode, error) {
	filter := bson.M{"_id": code, "used": false}
	update := bson.M{"$set": bson.M{"used": true, "used_by": usedBy, "used_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m creditCodeModel
	err := s.creditCodes().FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err == nil {
		return fromCreditCodeModel(&m), nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("mongo: mark credit code used: %w", err)
	}

	if _, err := s.GetCreditCode(ctx, code); err != nil {
		return nil, err
	}
	return nil, repository.ErrCodeUsed
}
