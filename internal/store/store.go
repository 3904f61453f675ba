package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
)

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is a persisted two-party conversation.
// The participant pair is unordered: (User1ID, User2ID) and (User2ID, User1ID)
// address the same record through PairKey.
type Conversation struct {
	ID        int64
	User1ID   int64
	User2ID   int64
	PairKey   string
	CreatedAt time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c != nil && (c.User1ID == userID || c.User2ID == userID)
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
	IsRead         bool
	CreatedAt      time.Time
}

// PairKey builds the canonical key for an unordered participant pair.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	// Returns ErrConflict if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// FindConversation looks up the conversation between a and b in either order.
	FindConversation(ctx context.Context, a, b int64) (*Conversation, error)

	// CreateConversation returns the conversation for the unordered pair, creating it
	// when absent. created is true only for the caller whose insert won.
	// Safe to call concurrently for the same pair.
	CreateConversation(ctx context.Context, a, b int64) (conv *Conversation, created bool, err error)

	// ListConversations lists conversations where userID participates,
	// most recently active first.
	ListConversations(ctx context.Context, userID int64) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns every message of a conversation ordered by (created_at, id).
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)

	// MarkRead flips is_read to true for unread messages authored by senderID.
	// When upTo is set only messages created at or before it are touched.
	// Returns the number of rows changed; already-read rows are not counted.
	MarkRead(ctx context.Context, conversationID, senderID int64, upTo *time.Time) (int64, error)

	// HasUnread reports whether senderID has any unread message in the conversation.
	HasUnread(ctx context.Context, conversationID, senderID int64) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Migrate applies the schema. Idempotent.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
