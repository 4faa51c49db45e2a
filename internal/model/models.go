// Package model defines the data models for the Telegram image bot.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format stored in Account.LastReset.
const DateLayout = "2006-01-02"

// Role is the privilege level of an account.
type Role string

const (
	RoleUser      Role = "user"      // Quota-bound regular user
	RoleAdmin     Role = "admin"     // Administrative commands, quota-bound for generation
	RoleWhitelist Role = "whitelist" // Unlimited generation plus administrative commands
)

// ParseRole converts a stored or user-supplied string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleWhitelist:
		return true
	}
	return false
}

// HasAdminAccess reports whether the role may run administrative commands.
func (r Role) HasAdminAccess() bool {
	return r == RoleAdmin || r == RoleWhitelist
}

// Unlimited reports whether the role bypasses every generation limit.
func (r Role) Unlimited() bool {
	return r == RoleWhitelist
}

// Account represents a Telegram user of the bot.
type Account struct {
	UserID             int64     `db:"user_id"`
	Username           string    `db:"username"`
	Role               Role      `db:"role"`
	DailyCount         int64     `db:"daily_count"`
	TotalCredits       int64     `db:"total_credits"`
	LastReset          string    `db:"last_reset"`
	HasClaimedReferral bool      `db:"has_claimed_referral"`
	ReferredBy         *int64    `db:"referred_by"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// DailyUsed returns the generations counted against the quota for today.
// A stale LastReset means the counter has not been rolled yet and reads as zero.
func (a *Account) DailyUsed(today string) int64 {
	if a.LastReset != today {
		return 0
	}
	return a.DailyCount
}

// AccountSummary is the projection used for broadcasts.
type AccountSummary struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	Role     Role   `db:"role"`
}

// ReferralCode is a short-lived single-use token issued by /refer.
type ReferralCode struct {
	Code        string    `db:"code"`
	GeneratedBy int64     `db:"generated_by"`
	Used        bool      `db:"used"`
	UsedBy      *int64    `db:"used_by"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// Expired reports whether the code can no longer be claimed at now.
func (c *ReferralCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CreditCode is an admin-issued single-use voucher.
type CreditCode struct {
	Code        string     `db:"code"`
	Amount      int64      `db:"amount"`
	GeneratedBy int64      `db:"generated_by"`
	Used        bool       `db:"used"`
	UsedBy      *int64     `db:"used_by"`
	UsedAt      *time.Time `db:"used_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Transaction represents a credit movement or a generation record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction types for categorizing credit changes.
const (
	TxTypeInitial       = "initial"        // Credits granted on account creation
	TxTypeReferralBonus = "referral_bonus" // Referral claim bonus, both parties
	TxTypeCreditCode    = "credit_code"    // Credit code redemption
	TxTypeGeneration    = "generation"     // Successful image generation
	TxTypeAdminRole     = "admin_role"     // Role granted or revoked
)

// BotStats aggregates global counters for /bot_stats.
type BotStats struct {
	TotalUsers       int64
	Users            int64
	Admins           int64
	Whitelisted      int64
	GenerationsToday int64
}
