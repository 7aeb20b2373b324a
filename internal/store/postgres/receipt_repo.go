package postgres

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

	s := &domain.MessageSee{MessageID: messageID, UserID: readerID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO message_sees (message_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING is_reacted, created_at
	`, messageID, readerID, at).Scan(&s.IsReacted, &s.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		existing, err := scanReceipt(tx.QueryRowContext(ctx, `
			SELECT message_id, user_id, is_reacted, created_at
			FROM message_sees
			WHERE message_id = $1 AND user_id = $2
		`, messageID, readerID))
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert receipt: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET is_seen = TRUE, seen_at = $1, updated_at = $1
		WHERE id = $2
		  AND sender_id <> $3
		  AND (is_seen = FALSE OR recipient_id = $3)
	`, at, messageID, readerID); err != nil {
		return nil, false, fmt.Errorf("flag message seen: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return s, true, nil
}

func (r *ReceiptRepo) Get(ctx context.Context, messageID, userID int64) (*domain.MessageSee, error) {
	return scanReceipt(r.db.QueryRowContext(ctx, `
		SELECT message_id, user_id, is_reacted, created_at
		FROM message_sees
		WHERE message_id = $1 AND user_id = $2
	`, messageID, userID))
}

func (r *ReceiptRepo) CountForMessage(ctx context.Context, messageID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_sees WHERE message_id = $1
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
		UPDATE message_sees SET is_reacted = $1
		WHERE message_id = $2 AND user_id = $3
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
			SELECT 1 FROM message_sees WHERE message_id = $1 AND is_reacted = TRUE
		), updated_at = $2
		WHERE id = $1
	`, messageID, at); err != nil {
		return fmt.Errorf("recompute reacted: %w", err)
	}

	return tx.Commit()
}

func scanReceipt(row rowScanner) (*domain.MessageSee, error) {
	s := &domain.MessageSee{}
	err := row.Scan(&s.MessageID, &s.UserID, &s.IsReacted, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("receipt not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan receipt: %w", err)
	}
	return s, nil
}
