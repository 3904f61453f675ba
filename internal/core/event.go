package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage delivers a freshly stored message to its recipient.
	EventNewMessage EventKind = iota
	// EventChatOpened tells a sender their messages were read.
	EventChatOpened
	// EventUserOnline reports a user's first connection.
	EventUserOnline
	// EventUserOffline reports a user's last disconnect.
	EventUserOffline
	// EventPong answers a ping.
	EventPong
	// EventError notifies clients about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventChatOpened:
		return "chat_opened"
	case EventUserOnline:
		return "user_online"
	case EventUserOffline:
		return "user_offline"
	case EventPong:
		return "pong"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind        EventKind
	Message     Message
	RecipientID int64
	Sender      *UserInfo // first contact only
	ChatOpened  ChatOpened
	UserID      int64 // presence events
	Error       *CoreError
}

// NewMessageEvent builds the delivery event for a stored message.
func NewMessageEvent(msg Message, recipientID int64, sender *UserInfo) *Event {
	return &Event{Kind: EventNewMessage, Message: msg, RecipientID: recipientID, Sender: sender}
}

// ChatOpenedEvent builds the read acknowledgment sent to senderID.
func ChatOpenedEvent(conversationID, senderID int64) *Event {
	return &Event{Kind: EventChatOpened, ChatOpened: ChatOpened{ConversationID: conversationID, SenderID: senderID}}
}
