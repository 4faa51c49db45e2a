package mongo

import (
	"time"

	"telegram-image-bot/internal/model"
)

type accountModel struct {
	UserID             int64     `bson:"_id"`
	Username           string    `bson:"username"`
	Role               string    `bson:"role"`
	DailyCount         int64     `bson:"daily_count"`
	TotalCredits       int64     `bson:"total_credits"`
	LastReset          string    `bson:"last_reset"`
	HasClaimedReferral bool      `bson:"has_claimed_referral"`
	ReferredBy         *int64    `bson:"referred_by,omitempty"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

func toAccountModel(a *model.Account) *accountModel {
	return &accountModel{
		UserID:             a.UserID,
		Username:           a.Username,
		Role:               string(a.Role),
		DailyCount:         a.DailyCount,
		TotalCredits:       a.TotalCredits,
		LastReset:          a.LastReset,
		HasClaimedReferral: a.HasClaimedReferral,
		ReferredBy:         a.ReferredBy,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *model.Account {
	role := model.Role(m.Role)
	if !role.Valid() {
		role = model.RoleUser
	}
	return &model.Account{
		UserID:             m.UserID,
		Username:           m.Username,
		Role:               role,
		DailyCount:         m.DailyCount,
		TotalCredits:       m.TotalCredits,
		LastReset:          m.LastReset,
		HasClaimedReferral: m.HasClaimedReferral,
		ReferredBy:         m.ReferredBy,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type referralModel struct {
	Code        string    `bson:"_id"`
	GeneratedBy int64     `bson:"generated_by"`
	Used        bool      `bson:"used"`
	UsedBy      *int64    `bson:"used_by,omitempty"`
	ExpiresAt   time.Time `bson:"expires_at"`
	CreatedAt   time.Time `bson:"created_at"`
}

func toReferralModel(rc *model.ReferralCode) *referralModel {
	return &referralModel{
		Code:        rc.Code,
		GeneratedBy: rc.GeneratedBy,
		Used:        rc.Used,
		UsedBy:      rc.UsedBy,
		ExpiresAt:   rc.ExpiresAt,
		CreatedAt:   rc.CreatedAt,
	}
}

func fromReferralModel(m *referralModel) *model.ReferralCode {
	return &model.ReferralCode{
		Code:        m.Code,
		GeneratedBy: m.GeneratedBy,
		Used:        m.Used,
		UsedBy:      m.UsedBy,
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
	}
}

type creditCodeModel struct {
	Code        string     `bson:"_id"`
	Amount      int64      `bson:"amount"`
	GeneratedBy int64      `bson:"generated_by"`
	Used        bool       `bson:"used"`
	UsedBy      *int64     `bson:"used_by,omitempty"`
	UsedAt      *time.Time `bson:"used_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
}

func toCreditCodeModel(cc *model.CreditCode) *creditCodeModel {
	return &creditCodeModel{
		Code:        cc.Code,
		Amount:      cc.Amount,
		GeneratedBy: cc.GeneratedBy,
		Used:        cc.Used,
		UsedBy:      cc.UsedBy,
		UsedAt:      cc.UsedAt,
		CreatedAt:   cc.CreatedAt,
	}
}

func fromCreditCodeModel(m *creditCodeModel) *model.CreditCode {
	return &model.CreditCode{
		Code:        m.Code,
		Amount:      m.Amount,
		GeneratedBy: m.GeneratedBy,
		Used:        m.Used,
		UsedBy:      m.UsedBy,
		UsedAt:      m.UsedAt,
		CreatedAt:   m.CreatedAt,
	}
}

type transactionModel struct {
	ID          int64     `bson:"_id"`
	UserID      int64     `bson:"user_id"`
	Amount      int64     `bson:"amount"`
	Type        string    `bson:"type"`
	Description *string   `bson:"description,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

func fromTransactionModel(m *transactionModel) *model.Transaction {
	return &model.Transaction{
		ID:          m.ID,
		UserID:      m.UserID,
		Amount:      m.Amount,
		Type:        m.Type,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}
