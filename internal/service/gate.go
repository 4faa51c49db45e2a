package service

import (
	"context"

	"github.com/rs/zerolog/log"
)

// MemberLookup returns a user's membership status in a channel,
// e.g. "member", "administrator", "creator", "left" or "kicked".
type MemberLookup interface {
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// MemberLookupFunc adapts a function to MemberLookup.
type MemberLookupFunc func(ctx context.Context, channel string, userID int64) (string, error)

func (f MemberLookupFunc) MemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	return f(ctx, channel, userID)
}

// ChannelGate requires users to have joined a channel before generating.
type ChannelGate struct {
	channel string
	lookup  MemberLookup
}

// NewChannelGate creates a gate for channel. An empty channel disables it.
func NewChannelGate(channel string, lookup MemberLookup) *ChannelGate {
	return &ChannelGate{channel: channel, lookup: lookup}
}

// Enabled reports whether a channel is configured.
func (g *ChannelGate) Enabled() bool {
	return g.channel != "" && g.lookup != nil
}

// Channel returns the configured channel.
func (g *ChannelGate) Channel() string {
	return g.channel
}

// IsJoinedStatus reports whether status counts as having joined.
func IsJoinedStatus(status string) bool {
	switch status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}

// Joined reports whether userID may pass. A failed lookup counts as not joined.
func (g *ChannelGate) Joined(ctx context.Context, userID int64) bool {
	if !g.Enabled() {
		return true
	}
	status, err := g.lookup.MemberStatus(ctx, g.channel, userID)
	if err != nil {
		log.Debug().Err(err).Int64("user_id", userID).Str("channel", g.channel).Msg("Membership lookup failed")
		return false
	}
	return IsJoinedStatus(status)
}
