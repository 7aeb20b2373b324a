package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat core schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users (owned by the account layer, read by the core)
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL    PRIMARY KEY,
			username   VARCHAR(150) UNIQUE NOT NULL,
			email      VARCHAR(254) UNIQUE,
			is_active  BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Verification codes
		`CREATE TABLE IF NOT EXISTS verification_codes (
			token      UUID         PRIMARY KEY,
			owner_id   BIGINT       NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			purpose    VARCHAR(32)  NOT NULL CHECK (purpose IN ('register', 'reset_password')),
			code_hash  VARCHAR(255) NOT NULL,
			attempts   INTEGER      NOT NULL DEFAULT 0,
			expire_at  TIMESTAMPTZ  NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Conversations: private pairs and owned groups/channels
		`CREATE TABLE IF NOT EXISTS conversations (
			id         BIGSERIAL    PRIMARY KEY,
			kind       VARCHAR(16)  NOT NULL,
			name       VARCHAR(255) NOT NULL DEFAULT '',
			image      TEXT,
			owner_id   BIGINT       REFERENCES users(id) ON DELETE CASCADE,
			user1_id   BIGINT       REFERENCES users(id) ON DELETE CASCADE,
			user2_id   BIGINT       REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			CONSTRAINT conversations_pair_unique UNIQUE (user1_id, user2_id),
			CONSTRAINT conversations_kind_shape CHECK (
				(kind = 'private' AND owner_id IS NULL AND user1_id IS NOT NULL AND user2_id IS NOT NULL AND user1_id < user2_id)
				OR (kind IN ('group', 'channel') AND owner_id IS NOT NULL AND user1_id IS NULL AND user2_id IS NULL)
			)
		)`,

		// Memberships
		`CREATE TABLE IF NOT EXISTS memberships (
			conversation_id BIGINT      NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			is_archived     BOOLEAN     NOT NULL DEFAULT FALSE,
			is_muted        BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, user_id)
		)`,

		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL   PRIMARY KEY,
			conversation_id BIGINT      REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id       BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			recipient_id    BIGINT      REFERENCES users(id) ON DELETE CASCADE,
			type            VARCHAR(16) NOT NULL DEFAULT 'TEXT',
			content         TEXT        NOT NULL,
			is_seen         BOOLEAN     NOT NULL DEFAULT FALSE,
			seen_at         TIMESTAMPTZ,
			is_edited       BOOLEAN     NOT NULL DEFAULT FALSE,
			is_reacted      BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT messages_target CHECK (conversation_id IS NOT NULL OR recipient_id IS NOT NULL)
		)`,

		// Per-reader receipts
		`CREATE TABLE IF NOT EXISTS message_sees (
			message_id BIGINT      NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			is_reacted BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, user_id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_codes_owner_purpose ON verification_codes(owner_id, purpose, expire_at)`,
		`CREATE INDEX IF NOT EXISTS idx_codes_expire_at ON verification_codes(expire_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender_recipient ON messages(sender_id, recipient_id, is_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_message_sees_user ON message_sees(user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
