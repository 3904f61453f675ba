package http

import (
	"encoding/json"

	"github.com/vovakirdan/messenger/internal/core"
	"github.com/vovakirdan/messenger/internal/proto"
	"github.com/vovakirdan/messenger/internal/service/messages"
	"github.com/vovakirdan/messenger/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypePing:
		return &core.Command{Kind: core.CommandPing}, nil
	case proto.InboundTypeChatOpened:
		var opened proto.ChatOpenedEvent
		if err := json.Unmarshal(inbound.Data, &opened); err != nil {
			return nil, &proto.Error{Code: proto.CodeBadRequest, Msg: "invalid chat-opened payload"}
		}
		if opened.ConversationID == 0 || opened.SenderID == 0 {
			return nil, &proto.Error{Code: proto.CodeBadRequest, Msg: "conversationId and senderId are required"}
		}
		return &core.Command{
			Kind: core.CommandChatOpened,
			ChatOpened: core.ChatOpened{
				ConversationID: opened.ConversationID,
				SenderID:       opened.SenderID,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: proto.CodeInvalidMessage, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) (proto.Outbound, error) {
	switch event.Kind {
	case core.EventNewMessage:
		payload := proto.NewMessageEvent{
			Message:     coreMessageToProto(event.Message),
			RecipientID: event.RecipientID,
		}
		if event.Sender != nil {
			payload.Sender = &proto.User{ID: event.Sender.ID, Username: event.Sender.Username, Online: event.Sender.Online}
		}
		return proto.NewEvent(proto.EventNewMessage, payload)
	case core.EventChatOpened:
		return proto.NewEvent(proto.EventChatOpened, proto.ChatOpenedEvent{
			ConversationID: event.ChatOpened.ConversationID,
			SenderID:       event.ChatOpened.SenderID,
		})
	case core.EventUserOnline:
		return proto.NewEvent(proto.EventAddOnlineUser, proto.PresenceEvent{UserID: event.UserID})
	case core.EventUserOffline:
		return proto.NewEvent(proto.EventRemoveOfflineUser, proto.PresenceEvent{UserID: event.UserID})
	case core.EventPong:
		return proto.NewEvent(proto.EventPong, nil)
	case core.EventError:
		if event.Error == nil {
			return proto.NewError("unknown", "unknown error"), nil
		}
		return proto.NewError(event.Error.Code, event.Error.Message), nil
	default:
		return proto.NewError("unknown", "unknown event"), nil
	}
}

func messageToProto(m *store.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func messageToCore(m *store.Message) core.Message {
	return core.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

func coreMessageToProto(m core.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func userInfoToCore(u *messages.UserView) *core.UserInfo {
	if u == nil {
		return nil
	}
	return &core.UserInfo{ID: u.ID, Username: u.Username, Online: u.Online}
}

func userViewToProto(u *messages.UserView) *proto.User {
	if u == nil {
		return nil
	}
	return &proto.User{ID: u.ID, Username: u.Username, Online: u.Online}
}

func usersToProto(users []messages.UserView) []proto.User {
	out := make([]proto.User, 0, len(users))
	for _, u := range users {
		out = append(out, proto.User{ID: u.ID, Username: u.Username, Online: u.Online})
	}
	return out
}

func conversationToProto(v messages.ConversationView) proto.Conversation {
	msgs := make([]proto.Message, 0, len(v.Messages))
	for _, m := range v.Messages {
		msgs = append(msgs, messageToProto(m))
	}
	return proto.Conversation{
		ID:                v.ID,
		User1ID:           v.User1ID,
		User2ID:           v.User2ID,
		OtherUser:         proto.User{ID: v.OtherUser.ID, Username: v.OtherUser.Username, Online: v.OtherUser.Online},
		Messages:          msgs,
		LatestMessageText: v.LatestMessageText,
		UnreadCount:       v.UnreadCount,
	}
}
