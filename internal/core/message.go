package core

import "time"

// Message is the domain model for a delivered chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
	IsRead         bool
	CreatedAt      time.Time
}

// UserInfo describes the author of a first-contact message.
type UserInfo struct {
	ID       int64
	Username string
	Online   bool
}
