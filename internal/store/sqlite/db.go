package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database at path. The pool is limited to a single
// connection: SQLite has one writer, and the conditional inserts in this
// package rely on statements not interleaving.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Timestamps are stored as unix milliseconds so
// that range predicates compare numerically.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username VARCHAR(150) UNIQUE NOT NULL,
			email VARCHAR(254) UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS verification_codes (
			token TEXT PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			purpose TEXT NOT NULL CHECK (purpose IN ('register', 'reset_password')),
			code_hash TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			expire_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			image TEXT,
			owner_id INTEGER,
			user1_id INTEGER,
			user2_id INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (user1_id, user2_id),
			CHECK (
				(kind = 'private' AND owner_id IS NULL AND user1_id IS NOT NULL AND user2_id IS NOT NULL AND user1_id < user2_id)
				OR (kind IN ('group', 'channel') AND owner_id IS NOT NULL AND user1_id IS NULL AND user2_id IS NULL)
			),
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (user1_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (user2_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS memberships (
			conversation_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			is_archived BOOLEAN NOT NULL DEFAULT 0,
			is_muted BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER,
			sender_id INTEGER NOT NULL,
			recipient_id INTEGER,
			type TEXT NOT NULL DEFAULT 'TEXT',
			content TEXT NOT NULL,
			is_seen BOOLEAN NOT NULL DEFAULT 0,
			seen_at INTEGER,
			is_edited BOOLEAN NOT NULL DEFAULT 0,
			is_reacted BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (conversation_id IS NOT NULL OR recipient_id IS NOT NULL),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (recipient_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS message_sees (
			message_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			is_reacted BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_codes_owner_purpose ON verification_codes(owner_id, purpose, expire_at);`,
		`CREATE INDEX IF NOT EXISTS idx_codes_expire_at ON verification_codes(expire_at);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender_recipient ON messages(sender_id, recipient_id, is_seen);`,
		`CREATE INDEX IF NOT EXISTS idx_message_sees_user ON message_sees(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	x := v.Int64
	return &x
}
