package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type ReceiptRepo struct {
	db *sql.DB
}

func NewReceiptRepo(db *sql.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

var _ domain.ReceiptRepository = (*ReceiptRepo)(nil)

func (r *ReceiptRepo) MarkSeen(ctx context.Context, messageID, readerID int64, at time.Time) (*domain.MessageSee, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO message_sees (message_id, user_id, is_reacted, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, readerID, toMillis(at))
	if err != nil {
		return nil, false, fmt.Errorf("insert receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		existing, err := scanReceipt(tx.QueryRowContext(ctx, `
			SELECT message_id, user_id, is_reacted, created_at
			FROM message_sees
			WHERE message_id = ? AND user_id = ?
		`, messageID, readerID))
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		return existing, false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET is_seen = 1, seen_at = ?, updated_at = ?
		WHERE id = ?
		  AND sender_id <> ?
		  AND (is_seen = 0 OR recipient_id = ?)
	`, toMillis(at), toMillis(at), messageID, readerID, readerID); err != nil {
		return nil, false, fmt.Errorf("flag message seen: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return &domain.MessageSee{
		MessageID: messageID,
		UserID:    readerID,
		CreatedAt: fromMillis(toMillis(at)),
	}, true, nil
}

func (r *ReceiptRepo) Get(ctx context.Context, messageID, userID int64) (*domain.MessageSee, error) {
	return scanReceipt(r.db.QueryRowContext(ctx, `
		SELECT message_id, user_id, is_reacted, created_at
		FROM message_sees
		WHERE message_id = ? AND user_id = ?
	`, messageID, userID))
}

func (r *ReceiptRepo) CountForMessage(ctx context.Context, messageID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_sees WHERE message_id = ?
	`, messageID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}

func (r *ReceiptRepo) SetReacted(ctx context.Context, messageID, userID int64, reacted bool, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE message_sees SET is_reacted = ?
		WHERE message_id = ? AND user_id = ?
	`, reacted, messageID, userID)
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFound("receipt not found")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET is_reacted = EXISTS (
			SELECT 1 FROM message_sees WHERE message_id = ? AND is_reacted = 1
		), updated_at = ?
		WHERE id = ?
	`, messageID, toMillis(at), messageID); err != nil {
		return fmt.Errorf("recompute reacted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanReceipt(row rowScanner) (*domain.MessageSee, error) {
	s := &domain.MessageSee{}
	var createdAt int64
	err := row.Scan(&s.MessageID, &s.UserID, &s.IsReacted, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("receipt not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan receipt: %w", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}
