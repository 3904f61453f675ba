package chatsync

import "time"

// Effect is work Reduce asks the caller to perform. Results that matter come
// back as events; every effect is safe to run more than once.
type Effect interface{ effect() }

// CheckUnread asks whether SenderID has unread messages in the conversation.
// The answer must be reported as UnreadChecked with the same Token.
type CheckUnread struct {
	ConversationID int64
	SenderID       int64
	Token          uint64
}

// MarkRead marks SenderID's messages read, bounded by UpTo when set.
type MarkRead struct {
	ConversationID int64
	SenderID       int64
	UpTo           *time.Time
}

// EmitChatOpened tells the peer over the push channel that we read their messages.
type EmitChatOpened struct {
	ConversationID int64
	SenderID       int64
}

// Refresh requests a fresh pull of all conversations.
type Refresh struct{}

func (CheckUnread) effect()    {}
func (MarkRead) effect()       {}
func (EmitChatOpened) effect() {}
func (Refresh) effect()        {}
