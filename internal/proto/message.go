package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 2

	InboundTypeChatOpened = "chat-opened"
	InboundTypePing       = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Push event names.
const (
	EventNewMessage        = "new-message"
	EventChatOpened        = "chat-opened"
	EventAddOnlineUser     = "add-online-user"
	EventRemoveOfflineUser = "remove-offline-user"
	EventPong              = "pong"
)

// Error codes sent in Outbound.Error.
const (
	CodeBadRequest     = "bad_request"
	CodeForbidden      = "forbidden"
	CodeRateLimited    = "rate_limited"
	CodeInvalidMessage = "invalid_message"
)

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// NewEvent encodes payload into an event envelope.
func NewEvent(event string, payload any) (Outbound, error) {
	out := Outbound{Type: OutboundTypeEvent, Event: event}
	if payload == nil {
		return out, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Outbound{}, err
	}
	out.Data = raw
	return out, nil
}

// NewError builds an error envelope.
func NewError(code, msg string) Outbound {
	return Outbound{Type: OutboundTypeError, Error: &Error{Code: code, Msg: msg}}
}

// NewMessageEvent delivers a stored message to its recipient.
// Sender is set only when the message created the conversation.
type NewMessageEvent struct {
	Message     Message `json:"message"`
	RecipientID int64   `json:"recipientId"`
	Sender      *User   `json:"sender,omitempty"`
}

// ChatOpenedEvent tells senderId that their messages in the conversation were read.
// The same shape is used inbound (client announces it opened the chat).
type ChatOpenedEvent struct {
	ConversationID int64 `json:"conversationId"`
	SenderID       int64 `json:"senderId"`
}

// PresenceEvent carries add-online-user and remove-offline-user.
type PresenceEvent struct {
	UserID int64 `json:"userId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
