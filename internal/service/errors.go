// Package service provides business logic implementations.
package service

import "errors"

// Errors returned to the command layer. Each maps to one user-visible denial.
var (
	ErrNotStarted           = errors.New("account not found: use /start first")
	ErrInvalidCode          = errors.New("invalid code")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrExpired              = errors.New("code expired")
	ErrAlreadyUsed          = errors.New("code already used")
	ErrAlreadyClaimed       = errors.New("referral already claimed")
	ErrSelfReferral         = errors.New("cannot claim own referral code")
	ErrQuotaExceeded        = errors.New("daily limit reached and no credits left")
	ErrDuplicateCode        = errors.New("code already exists")
	ErrInvalidAmount        = errors.New("invalid amount: must be positive")
	ErrUpstreamFailure      = errors.New("image provider failure")
	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrNotWhitelisted       = errors.New("user is not whitelisted")
)
