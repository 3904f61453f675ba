package chatsync

// Event is an input to Reduce.
type Event interface{ event() }

// PullCompleted carries the result of listing conversations. PresenceSeq is
// State.PresenceSeq at the moment the pull was issued.
type PullCompleted struct {
	Conversations []Persisted
	PresenceSeq   uint64
}

// MessageSent is the server's answer to our own send.
type MessageSent struct {
	Message   Message
	Recipient User
}

// MessageReceived is a new-message push. Sender is set only on first contact.
type MessageReceived struct {
	Message Message
	Sender  *User
}

// PresenceChanged is an add-online-user or remove-offline-user push.
type PresenceChanged struct {
	UserID int64
	Online bool
}

// SearchResults adds placeholders for users we have no conversation with.
type SearchResults struct {
	Users []User
}

// SearchCleared drops every placeholder.
type SearchCleared struct{}

// ConversationOpened is the local user opening the conversation with PeerID.
type ConversationOpened struct {
	PeerID int64
}

// ConversationClosed means no conversation is open anymore.
type ConversationClosed struct{}

// UnreadChecked is the result of a CheckUnread effect.
type UnreadChecked struct {
	ConversationID int64
	Token          uint64
	HasUnread      bool
	Err            error
}

// PeerOpened is a chat-opened push: the peer has read our messages.
type PeerOpened struct {
	ConversationID int64
	SenderID       int64
}

func (PullCompleted) event()      {}
func (MessageSent) event()        {}
func (MessageReceived) event()    {}
func (PresenceChanged) event()    {}
func (SearchResults) event()      {}
func (SearchCleared) event()      {}
func (ConversationOpened) event() {}
func (ConversationClosed) event() {}
func (UnreadChecked) event()      {}
func (PeerOpened) event()         {}
