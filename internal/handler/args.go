package handler

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errUsage    = errors.New("missing arguments")
	errNotInt   = errors.New("not an integer")
	errBadUser  = errors.New("invalid user id")
	errBadCount = errors.New("invalid amount")
)

// parseUserID parses a positive Telegram user id.
func parseUserID(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return 0, errNotInt
	}
	if id <= 0 {
		return 0, errBadUser
	}
	return id, nil
}

// parseGenCode parses "<amount> <code>".
func parseGenCode(args []string) (int64, string, error) {
	if len(args) < 2 {
		return 0, "", errUsage
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", errNotInt
	}
	if amount <= 0 {
		return 0, "", errBadCount
	}
	return amount, args[1], nil
}

// parseReferrer reads the /start deep-link payload. Anything that is not a
// positive user id means no referrer.
func parseReferrer(payload string) int64 {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "ref_")
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// joinPrompt returns the prompt text of a /gen message.
func joinPrompt(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
