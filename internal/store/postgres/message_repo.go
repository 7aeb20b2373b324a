package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, recipient_id, type, content, is_seen, seen_at, is_edited, is_reacted, created_at, updated_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, recipient_id, type, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at
	`,
		m.ConversationID,
		m.SenderID,
		m.RecipientID,
		m.Type,
		m.Content,
		m.CreatedAt,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if m.ConversationID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = $1 WHERE id = $2
		`, m.CreatedAt, *m.ConversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
	}

	return tx.Commit()
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, content string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET content = $1, is_edited = TRUE, updated_at = $2
		WHERE id = $3
	`, content, at, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFound("message not found")
	}
	return nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, conversationID, limit)
}

func (r *MessageRepo) ListDirect(ctx context.Context, userA, userB int64, limit int) ([]*domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id IS NULL
		  AND ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userA, userB, limit)
}

func (r *MessageRepo) CountFromTo(ctx context.Context, senderID, recipientID int64, unseenOnly bool) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE sender_id = $1 AND recipient_id = $2 AND (NOT $3::boolean OR is_seen = FALSE)
	`, senderID, recipientID, unseenOnly).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) CountUnreadInConversation(ctx context.Context, conversationID, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND NOT EXISTS (
			SELECT 1 FROM message_sees s
			WHERE s.message_id = m.id AND s.user_id = $2
		  )
	`, conversationID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.RecipientID,
		&m.Type,
		&m.Content,
		&m.IsSeen,
		&m.SeenAt,
		&m.IsEdited,
		&m.IsReacted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return m, nil
}
