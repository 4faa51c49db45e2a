package handler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"telegram-image-bot/internal/service"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		args []string
		want int64
		err  error
	}{
		{nil, 0, errUsage},
		{[]string{"abc"}, 0, errNotInt},
		{[]string{"-5"}, 0, errBadUser},
		{[]string{"0"}, 0, errBadUser},
		{[]string{"123456789"}, 123456789, nil},
		{[]string{"42", "extra"}, 42, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.args), func(t *testing.T) {
			got, err := parseUserID(tt.args)
			assert.ErrorIs(t, err, tt.err)
			if tt.err == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGenCode(t *testing.T) {
	amount, code, err := parseGenCode([]string{"50", "PROMO"})
	assert.NoError(t, err)
	assert.Equal(t, int64(50), amount)
	assert.Equal(t, "PROMO", code)

	_, _, err = parseGenCode([]string{"50"})
	assert.ErrorIs(t, err, errUsage)
	_, _, err = parseGenCode([]string{"fifty", "PROMO"})
	assert.ErrorIs(t, err, errNotInt)
	_, _, err = parseGenCode([]string{"0", "PROMO"})
	assert.ErrorIs(t, err, errBadCount)
}

func TestParseReferrerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.Int64Range(1, 1<<40).Draw(t, "id")
		prefix := rapid.SampledFrom([]string{"", "ref_"}).Draw(t, "prefix")
		if got := parseReferrer(fmt.Sprintf("%s%d", prefix, id)); got != id {
			t.Fatalf("parseReferrer = %d, want %d", got, id)
		}
	})

	assert.Zero(t, parseReferrer(""))
	assert.Zero(t, parseReferrer("hello"))
	assert.Zero(t, parseReferrer("-7"))
}

func TestJoinPrompt(t *testing.T) {
	assert.Equal(t, "a red fox", joinPrompt([]string{"a", "red", "fox"}))
	assert.Equal(t, "", joinPrompt(nil))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, userMessage(service.ErrInvalidCode), userMessage(service.ErrAlreadyUsed))
	assert.Equal(t, msgFailed, userMessage(errors.New("connection refused")))
	assert.NotEqual(t, msgFailed, userMessage(fmt.Errorf("wrapped: %w", service.ErrQuotaExceeded)))

	for _, err := range []error{
		service.ErrNotStarted, service.ErrUnauthorized, service.ErrExpired,
		service.ErrAlreadyClaimed, service.ErrSelfReferral, service.ErrDuplicateCode,
		service.ErrInvalidAmount, service.ErrInvalidUserID, service.ErrNotWhitelisted, service.ErrEmptyPrompt,
		service.ErrGenerationInProgress, service.ErrUpstreamFailure,
	} {
		assert.NotEqual(t, msgFailed, userMessage(err), err.Error())
	}
}
