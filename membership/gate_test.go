package membership

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"vidforge/core/logger"

	tele "gopkg.in/telebot.v4"
)

func TestMain(m *testing.M) {
	_ = logger.Init(nil)
	os.Exit(m.Run())
}

type stubAPI struct {
	role     tele.MemberStatus
	err      error
	gotChat  string
	gotUser  string
	nilReply bool
}

func (s *stubAPI) ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error) {
	s.gotChat = chat.Recipient()
	s.gotUser = user.Recipient()
	if s.err != nil {
		return nil, s.err
	}
	if s.nilReply {
		return nil, nil
	}
	return &tele.ChatMember{Role: s.role}, nil
}

func TestIsMemberRoles(t *testing.T) {
	cases := []struct {
		role tele.MemberStatus
		want bool
	}{
		{tele.Creator, true},
		{tele.Administrator, true},
		{tele.Member, true},
		{tele.Restricted, false},
		{tele.Left, false},
		{tele.Kicked, false},
	}
	gate := NewGate("@mychannel")
	for _, tc := range cases {
		api := &stubAPI{role: tc.role}
		got := gate.IsMember(context.Background(), api, 7)
		require.Equal(t, tc.want, got, "role %s", tc.role)
	}
}

func TestIsMemberFailsClosed(t *testing.T) {
	gate := NewGate("@mychannel")

	api := &stubAPI{err: errors.New("telegram: Bad Request (400)")}
	require.False(t, gate.IsMember(context.Background(), api, 7))

	api = &stubAPI{nilReply: true}
	require.False(t, gate.IsMember(context.Background(), api, 7))

	require.False(t, gate.IsMember(context.Background(), nil, 7))
}

func TestGateNormalizesChannelUsername(t *testing.T) {
	gate := NewGate("mychannel")
	require.Equal(t, "@mychannel", gate.Channel())

	api := &stubAPI{role: tele.Member}
	require.True(t, gate.IsMember(context.Background(), api, 42))
	require.Equal(t, "@mychannel", api.gotChat)
	require.Equal(t, "42", api.gotUser)
}
