package messages

import (
	"context"

	"github.com/vovakirdan/messenger/internal/store"
)

// UserView is a user as seen by another participant.
type UserView struct {
	ID       int64
	Username string
	Online   bool
}

// ConversationView is a conversation projected for one participant.
type ConversationView struct {
	ID                int64
	User1ID           int64
	User2ID           int64
	OtherUser         UserView
	Messages          []*store.Message
	LatestMessageText string
	UnreadCount       int
}

func (s *Service) userView(ctx context.Context, u *store.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, Online: s.online(ctx, u.ID)}
}

func (s *Service) conversationView(ctx context.Context, viewerID int64, c *store.Conversation, other *store.User, msgs []*store.Message) ConversationView {
	v := ConversationView{
		ID:        c.ID,
		User1ID:   c.User1ID,
		User2ID:   c.User2ID,
		OtherUser: s.userView(ctx, other),
		Messages:  msgs,
	}
	if len(msgs) > 0 {
		v.LatestMessageText = msgs[len(msgs)-1].Text
	}
	for _, m := range msgs {
		if m.SenderID != viewerID && !m.IsRead {
			v.UnreadCount++
		}
	}
	return v
}
