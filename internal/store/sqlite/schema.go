package sqlite

// migrations are applied in order; every statement must be idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user1_id   INTEGER NOT NULL,
		user2_id   INTEGER NOT NULL,
		pair_key   TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (user1_id <> user2_id),
		FOREIGN KEY (user1_id) REFERENCES users(id),
		FOREIGN KEY (user2_id) REFERENCES users(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user1_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user2_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		sender_id       INTEGER NOT NULL,
		text            TEXT NOT NULL,
		is_read         BOOLEAN NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id),
		FOREIGN KEY (sender_id) REFERENCES users(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, sender_id, is_read)`,
	// Group chats exist in the schema only; nothing reads or writes them yet.
	`CREATE TABLE IF NOT EXISTS groups (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		group_name      TEXT,
		conversation_id INTEGER,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL,
		user_id  INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id),
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`,
}
