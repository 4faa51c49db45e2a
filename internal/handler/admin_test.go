package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository/memory"
	"telegram-image-bot/internal/service"
)

const ownerID = 1

func newAdminHandler(t *testing.T) *AdminHandler {
	t.Helper()
	access := service.NewAccessControl(memory.New(), service.NewCalendar(time.UTC, time.Now), audit.Nop, ownerID, 10)
	return NewAdminHandler(access, nil, nil, nil)
}

func TestBroadcastPendingIsConsumedOnce(t *testing.T) {
	h := NewAdminHandler(nil, nil, nil, nil)

	assert.False(t, h.Pending(7))
	assert.False(t, h.takePending(7))

	h.pending[7] = true
	assert.True(t, h.Pending(7))
	assert.False(t, h.Pending(8))

	assert.True(t, h.takePending(7))
	assert.False(t, h.takePending(7))
	assert.False(t, h.Pending(7))
}

func TestFormatStats(t *testing.T) {
	acc := &model.Account{
		UserID:       42,
		Username:     "alice",
		Role:         model.RoleUser,
		DailyCount:   3,
		TotalCredits: 5,
		LastReset:    "2024-03-10",
	}

	out := formatStats(acc, "2024-03-10", 10)
	assert.Contains(t, out, "<code>42</code>")
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "USER")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "Credits: 5")

	// a stale reset date reads as zero used
	assert.Contains(t, formatStats(acc, "2024-03-11", 10), "0/10")

	acc.Role = model.RoleWhitelist
	acc.Username = ""
	out = formatStats(acc, "2024-03-10", 10)
	assert.Contains(t, out, "unlimited")
	assert.Contains(t, out, "N/A")
}

func TestTxLabel(t *testing.T) {
	assert.Equal(t, "🎨 Image", txLabel(model.TxTypeGeneration))
	assert.Equal(t, "mystery", txLabel("mystery"))
}

func TestClaimBroadcastRechecksRole(t *testing.T) {
	ctx := context.Background()
	h := newAdminHandler(t)
	require.NoError(t, h.access.AddAdmin(ctx, ownerID, 20))

	// nothing pending
	ok, err := h.claimBroadcast(ctx, 20)
	require.NoError(t, err)
	assert.False(t, ok)

	h.pending[20] = true
	ok, err = h.claimBroadcast(ctx, 20)
	require.NoError(t, err)
	assert.True(t, ok)

	// demoted between /broadcast and the message
	h.pending[20] = true
	require.NoError(t, h.access.RemoveAdmin(ctx, ownerID, 20))
	ok, err = h.claimBroadcast(ctx, 20)
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.False(t, ok)
	assert.False(t, h.Pending(20))
}
