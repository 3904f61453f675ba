package client

import (
	"github.com/vovakirdan/messenger/internal/chatsync"
	"github.com/vovakirdan/messenger/internal/proto"
)

func userFromProto(u proto.User) chatsync.User {
	return chatsync.User{ID: u.ID, Username: u.Username, Online: u.Online}
}

func usersFromProto(in []proto.User) []chatsync.User {
	out := make([]chatsync.User, 0, len(in))
	for _, u := range in {
		out = append(out, userFromProto(u))
	}
	return out
}

func messageFromProto(m proto.Message) chatsync.Message {
	return chatsync.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

func conversationsFromProto(in []proto.Conversation) []chatsync.Persisted {
	out := make([]chatsync.Persisted, 0, len(in))
	for _, c := range in {
		msgs := make([]chatsync.Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			msgs = append(msgs, messageFromProto(m))
		}
		out = append(out, chatsync.Persisted{
			ID:                c.ID,
			User1ID:           c.User1ID,
			User2ID:           c.User2ID,
			Other:             userFromProto(c.OtherUser),
			Messages:          msgs,
			LatestMessageText: c.LatestMessageText,
		})
	}
	return out
}
