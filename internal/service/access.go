package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// Tier is the authorization level a command requires.
type Tier int

const (
	TierUser  Tier = iota // Anyone
	TierAdmin             // Admin, whitelist or owner
	TierOwner             // The configured owner only
)

func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierOwner:
		return "owner"
	}
	return "user"
}

// AccessControl answers role checks from the stored role on every call.
type AccessControl struct {
	store          repository.Store
	cal            *Calendar
	audit          audit.Recorder
	ownerID        int64
	initialCredits int64
}

// NewAccessControl creates a new AccessControl instance.
// initialCredits seeds accounts created by a role grant.
func NewAccessControl(store repository.Store, cal *Calendar, recorder audit.Recorder, ownerID, initialCredits int64) *AccessControl {
	return &AccessControl{
		store:          store,
		cal:            cal,
		audit:          recorder,
		ownerID:        ownerID,
		initialCredits: initialCredits,
	}
}

// IsOwner reports whether userID is the configured owner.
func (a *AccessControl) IsOwner(userID int64) bool {
	return userID == a.ownerID
}

// IsAdmin reports whether the stored role grants admin commands.
func (a *AccessControl) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	acc, err := a.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account: %w", err)
	}
	return acc.Role.HasAdminAccess(), nil
}

// Authorize returns ErrUnauthorized unless userID meets tier.
func (a *AccessControl) Authorize(ctx context.Context, userID int64, tier Tier) error {
	switch tier {
	case TierUser:
		return nil
	case TierOwner:
		if a.IsOwner(userID) {
			return nil
		}
		return ErrUnauthorized
	case TierAdmin:
		if a.IsOwner(userID) {
			return nil
		}
		ok, err := a.IsAdmin(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
		return nil
	}
	return ErrUnauthorized
}

// AddAdmin grants the admin role. Owner only.
func (a *AccessControl) AddAdmin(ctx context.Context, actorID, targetID int64) error {
	return a.grant(ctx, actorID, targetID, TierOwner, model.RoleAdmin, audit.KindAdminAdded)
}

// RemoveAdmin demotes targetID to a regular user. Owner only.
func (a *AccessControl) RemoveAdmin(ctx context.Context, actorID, targetID int64) error {
	return a.revoke(ctx, actorID, targetID, TierOwner, "", audit.KindAdminRemoved)
}

// AddWhitelist grants the whitelist role. Admin or owner.
func (a *AccessControl) AddWhitelist(ctx context.Context, actorID, targetID int64) error {
	return a.grant(ctx, actorID, targetID, TierAdmin, model.RoleWhitelist, audit.KindWhitelistAdded)
}

// RemoveWhitelist demotes a whitelisted targetID to a regular user. Admin or
// owner. Only the owner may use it on a target with another role.
func (a *AccessControl) RemoveWhitelist(ctx context.Context, actorID, targetID int64) error {
	var only model.Role
	if !a.IsOwner(actorID) {
		only = model.RoleWhitelist
	}
	return a.revoke(ctx, actorID, targetID, TierAdmin, only, audit.KindWhitelistRemoved)
}

// grant upserts role on targetID, creating a seed account when the target
// has never started the bot.
func (a *AccessControl) grant(ctx context.Context, actorID, targetID int64, tier Tier, role model.Role, kind audit.Kind) error {
	if err := a.Authorize(ctx, actorID, tier); err != nil {
		return err
	}
	if targetID <= 0 {
		return ErrInvalidUserID
	}

	seed := &model.Account{
		UserID:       targetID,
		Role:         role,
		TotalCredits: a.initialCredits,
		LastReset:    a.cal.Today(),
	}
	desc := fmt.Sprintf("role %s by %d", role, actorID)
	err := a.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := a.store.SetRole(ctx, seed); err != nil {
			return err
		}
		_, err := a.store.CreateTransaction(ctx, targetID, 0, model.TxTypeAdminRole, &desc)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}

	log.Info().
		Int64("admin_id", actorID).
		Int64("target_id", targetID).
		Str("role", string(role)).
		Msg("Role granted")

	a.audit.Record(kind, audit.F("User", targetID), audit.F("By", actorID))
	return nil
}

// revoke sets targetID back to RoleUser. A non-empty only restricts it to
// targets currently holding that role; others get ErrNotWhitelisted.
func (a *AccessControl) revoke(ctx context.Context, actorID, targetID int64, tier Tier, only model.Role, kind audit.Kind) error {
	if err := a.Authorize(ctx, actorID, tier); err != nil {
		return err
	}
	if targetID <= 0 {
		return ErrInvalidUserID
	}

	desc := fmt.Sprintf("role %s by %d", model.RoleUser, actorID)
	err := a.store.WithinTx(ctx, func(ctx context.Context) error {
		if only != "" {
			target, err := a.store.GetAccount(ctx, targetID)
			if err != nil {
				return err
			}
			if target.Role != only {
				return ErrNotWhitelisted
			}
		}
		if err := a.store.UpdateRole(ctx, targetID, model.RoleUser); err != nil {
			return err
		}
		_, err := a.store.CreateTransaction(ctx, targetID, 0, model.TxTypeAdminRole, &desc)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotStarted
		}
		if errors.Is(err, ErrNotWhitelisted) {
			log.Warn().
				Int64("admin_id", actorID).
				Int64("target_id", targetID).
				Msg("Refused to demote non-whitelisted account")
			return err
		}
		return fmt.Errorf("failed to update role: %w", err)
	}

	log.Info().
		Int64("admin_id", actorID).
		Int64("target_id", targetID).
		Msg("Role revoked")

	a.audit.Record(kind, audit.F("User", targetID), audit.F("By", actorID))
	return nil
}
