package proto

import "time"

// User is the public view of a user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Message is a stored chat message on the wire.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Text           string    `json:"text"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation is one entry of the conversation list.
type Conversation struct {
	ID                int64     `json:"id"`
	User1ID           int64     `json:"user1Id"`
	User2ID           int64     `json:"user2Id"`
	OtherUser         User      `json:"otherUser"`
	Messages          []Message `json:"messages"`
	LatestMessageText string    `json:"latestMessageText"`
	UnreadCount       int       `json:"unreadCount"`
}

// Credentials is the body of register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	RecipientID    int64  `json:"recipientId"`
	Text           string `json:"text"`
	ConversationID *int64 `json:"conversationId"`
}

// SendMessageResponse is returned by POST /api/messages.
type SendMessageResponse struct {
	Message Message `json:"message"`
	Sender  *User   `json:"sender,omitempty"`
}

// MarkReadRequest is the body of PUT /api/messages.
// UpTo bounds the update to messages created at or before it.
type MarkReadRequest struct {
	ConversationID int64      `json:"conversationId"`
	SenderID       int64      `json:"senderId"`
	UpTo           *time.Time `json:"upTo,omitempty"`
}
