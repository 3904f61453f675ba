package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/messenger/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the SQLite database at dbPath and applies the schema.
func New(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	s, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		s.db.Close()
		return nil, err
	}

	return s, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function instead of
// the built-in schema. Useful for tests that need a hand-crafted schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := s.db.Ping(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return s, nil
}

func open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, s.now())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// SearchUsers searches for users by username substring, alphabetically.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	q := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username LIKE ?
		ORDER BY username ASC
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// ==== ConversationStore implementation ====

const conversationColumns = `id, user1_id, user2_id, pair_key, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*store.Conversation, error) {
	var c store.Conversation
	if err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.PairKey, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound("conversation", err)
	}
	return c, nil
}

// FindConversation looks up the conversation between a and b regardless of order.
func (s *SQLiteStore) FindConversation(ctx context.Context, a, b int64) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE pair_key = ?`, store.PairKey(a, b))
	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound("conversation", err)
	}
	return c, nil
}

// CreateConversation inserts the pair unless it already exists and returns the stored row.
// The UNIQUE pair_key turns a concurrent second insert into a no-op, so both callers
// read back the same record.
func (s *SQLiteStore) CreateConversation(ctx context.Context, a, b int64) (*store.Conversation, bool, error) {
	query := `
		INSERT INTO conversations (user1_id, user2_id, pair_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, a, b, store.PairKey(a, b), s.now())
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	conv, err := s.FindConversation(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return conv, affected == 1, nil
}

// ListConversations lists conversations of userID, most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.user1_id, c.user2_id, c.pair_key, c.created_at
		FROM conversations c
		LEFT JOIN (
			SELECT conversation_id, MAX(created_at) AS last_at
			FROM messages
			GROUP BY conversation_id
		) m ON m.conversation_id = c.id
		WHERE c.user1_id = ? OR c.user2_id = ?
		ORDER BY COALESCE(m.last_at, c.created_at) DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*store.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	query := `
		INSERT INTO messages (conversation_id, sender_id, text, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ConversationID, msg.SenderID, msg.Text, msg.IsRead, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages returns the conversation's messages in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, text, is_read, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// MarkRead marks senderID's unread messages in the conversation as read.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, senderID int64, upTo *time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = 1
		WHERE conversation_id = ? AND sender_id = ? AND is_read = 0
	`
	args := []any{conversationID, senderID}
	if upTo != nil {
		query += ` AND created_at <= ?`
		args = append(args, upTo.UTC())
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// HasUnread reports whether senderID has unread messages in the conversation.
func (s *SQLiteStore) HasUnread(ctx context.Context, conversationID, senderID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE conversation_id = ? AND sender_id = ? AND is_read = 0
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, conversationID, senderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query unread: %w", err)
	}
	return exists, nil
}

var _ store.Store = (*SQLiteStore)(nil)
