package middleware

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type senderContext struct {
	tele.Context
	sender *tele.User
}

func (s senderContext) Sender() *tele.User { return s.sender }

func TestAdminOnlyMiddleware(t *testing.T) {
	cases := []struct {
		name     string
		adminID  int64
		sender   *tele.User
		wantNext bool
	}{
		{"admin passes", 42, &tele.User{ID: 42}, true},
		{"other user rejected", 42, &tele.User{ID: 7}, false},
		{"unset admin id rejects everyone", 0, &tele.User{ID: 7}, false},
		{"nil sender rejected", 42, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nextCalled := false
			rejected := false
			h := AdminOnlyMiddleware(AdminOptions{
				AdminID: tc.adminID,
				OnReject: func(tele.Context) error {
					rejected = true
					return nil
				},
			})(func(tele.Context) error {
				nextCalled = true
				return nil
			})

			require.NoError(t, h(senderContext{sender: tc.sender}))
			require.Equal(t, tc.wantNext, nextCalled)
			require.Equal(t, !tc.wantNext, rejected)
		})
	}
}
