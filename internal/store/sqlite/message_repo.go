package sqlite

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

// Create inserts m and touches the parent conversation so that listings
// order by latest activity.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, recipient_id, type, content, is_seen, seen_at, is_edited, is_reacted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL, 0, 0, ?, ?)
	`,
		nullInt(m.ConversationID),
		m.SenderID,
		nullInt(m.RecipientID),
		m.Type,
		m.Content,
		toMillis(m.CreatedAt),
		toMillis(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if m.ConversationID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = ? WHERE id = ?
		`, toMillis(m.CreatedAt), *m.ConversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.ID = id
	m.UpdatedAt = m.CreatedAt
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = ?
	`, id))
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, content string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, is_edited = 1, updated_at = ?
		WHERE id = ?
	`, content, toMillis(at), id)
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
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, conversationID, limit)
}

func (r *MessageRepo) ListDirect(ctx context.Context, userA, userB int64, limit int) ([]*domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id IS NULL
		  AND ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userA, userB, userB, userA, limit)
}

func (r *MessageRepo) CountFromTo(ctx context.Context, senderID, recipientID int64, unseenOnly bool) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE sender_id = ? AND recipient_id = ? AND (NOT ? OR is_seen = 0)
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
		WHERE m.conversation_id = ?
		  AND m.sender_id <> ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_sees s
			WHERE s.message_id = m.id AND s.user_id = ?
		  )
	`, conversationID, userID, userID).Scan(&n)
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
	var conv, recipient, seenAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&m.ID,
		&conv,
		&m.SenderID,
		&recipient,
		&m.Type,
		&m.Content,
		&m.IsSeen,
		&seenAt,
		&m.IsEdited,
		&m.IsReacted,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.ConversationID = fromNullInt(conv)
	m.RecipientID = fromNullInt(recipient)
	m.SeenAt = fromNullMillis(seenAt)
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}
