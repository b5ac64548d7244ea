// Package membership checks that a user has joined the required channel
// before the bot renders videos for them.
package membership

import (
	"context"
	"strings"

	"vidforge/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// ChatMemberGetter is the slice of the bot API the gate needs.
// *tele.Bot satisfies it.
type ChatMemberGetter interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// channelRecipient lets a "@username" string act as a tele.Recipient.
type channelRecipient string

func (c channelRecipient) Recipient() string { return string(c) }

// Gate answers whether a user currently belongs to the configured channel.
type Gate struct {
	channel string
}

// NewGate builds a gate for the channel username ("@name" prefix optional).
func NewGate(channelUsername string) *Gate {
	username := strings.TrimSpace(channelUsername)
	if username != "" && !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	return &Gate{channel: username}
}

// Channel returns the channel username the gate checks against.
func (g *Gate) Channel() string { return g.channel }

// IsMember reports whether userID belongs to the channel. Lookup failures
// count as not a member: when Telegram cannot confirm membership, the gate
// stays closed.
func (g *Gate) IsMember(ctx context.Context, api ChatMemberGetter, userID int64) bool {
	if g.channel == "" || api == nil {
		return false
	}

	member, err := api.ChatMemberOf(channelRecipient(g.channel), &tele.User{ID: userID})
	if err != nil {
		logger.GATE.Warn("membership lookup failed",
			slog.String("event", "gate.check"),
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	if member == nil {
		return false
	}

	ok := roleGrantsAccess(member.Role)
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "gate", "gate.check",
			slog.String("status", "ok"),
			slog.Int64("user_id", userID),
			slog.String("payload", string(member.Role)),
			slog.Bool("member", ok),
		)
	}
	return ok
}

// roleGrantsAccess accepts member, administrator, and creator. Restricted
// users are still members of the chat, but left and kicked are not.
func roleGrantsAccess(role tele.MemberStatus) bool {
	switch role {
	case tele.Member, tele.Administrator, tele.Creator:
		return true
	}
	return false
}
