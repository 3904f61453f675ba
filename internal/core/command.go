package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandChatOpened announces that the client read the peer's messages.
	CommandChatOpened CommandKind = iota
	// CommandPing asks for a pong.
	CommandPing
)

// ChatOpened names a conversation and the participant whose messages were read.
type ChatOpened struct {
	ConversationID int64
	SenderID       int64
}

// Command represents an action requested by a client.
type Command struct {
	Kind       CommandKind
	ChatOpened ChatOpened
}
