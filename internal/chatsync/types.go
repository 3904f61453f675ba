package chatsync

import "time"

// User is a participant as shown in the conversation list.
type User struct {
	ID       int64
	Username string
	Online   bool
}

// Message is a persisted message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
	IsRead         bool
	CreatedAt      time.Time
}

// Entry is one row of the conversation list: a Placeholder or a Persisted conversation.
type Entry interface {
	// Peer returns the other participant.
	Peer() User
	entry()
}

// Placeholder stands for a searched user with no conversation yet.
type Placeholder struct {
	Other User
}

func (p Placeholder) Peer() User { return p.Other }
func (Placeholder) entry()       {}

// Persisted is a conversation known to the server.
type Persisted struct {
	ID                int64
	User1ID           int64
	User2ID           int64
	Other             User
	Messages          []Message
	LatestMessageText string
}

func (p Persisted) Peer() User { return p.Other }
func (Persisted) entry()       {}

// ReadState tracks unread reconciliation for one conversation.
type ReadState int

const (
	ReadUnknown ReadState = iota
	ReadCheckPending
	ReadClean
	ReadDirty
)

func (s ReadState) String() string {
	switch s {
	case ReadCheckPending:
		return "check_pending"
	case ReadClean:
		return "clean"
	case ReadDirty:
		return "dirty"
	default:
		return "unknown"
	}
}
