package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatcore/internal/domain"
)

type MembershipRepo struct {
	db *sql.DB
}

func NewMembershipRepo(db *sql.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

var _ domain.MembershipRepository = (*MembershipRepo)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertMembership adds a membership, ignoring one that already exists.
func insertMembership(ctx context.Context, db execer, conversationID, userID, createdAt int64) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO memberships (conversation_id, user_id, is_archived, is_muted, created_at)
		VALUES (?, ?, 0, 0, ?)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, conversationID, userID, createdAt); err != nil {
		return fmt.Errorf("insert membership %d: %w", userID, err)
	}
	return nil
}

func (r *MembershipRepo) Get(ctx context.Context, conversationID, userID int64) (*domain.Membership, error) {
	m := &domain.Membership{}
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, is_archived, is_muted, created_at
		FROM memberships
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&m.ConversationID, &m.UserID, &m.IsArchived, &m.IsMuted, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("membership not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	m.CreatedAt = fromMillis(createdAt)
	return m, nil
}

func (r *MembershipRepo) Exists(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM memberships
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

func (r *MembershipRepo) List(ctx context.Context, conversationID int64) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, is_archived, is_muted, created_at
		FROM memberships
		WHERE conversation_id = ?
		ORDER BY user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var res []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{}
		var createdAt int64
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.IsArchived, &m.IsMuted, &createdAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MembershipRepo) Add(ctx context.Context, m *domain.Membership) error {
	return insertMembership(ctx, r.db, m.ConversationID, m.UserID, toMillis(m.CreatedAt))
}

func (r *MembershipRepo) SetArchived(ctx context.Context, conversationID, userID int64, archived bool) error {
	return r.setFlag(ctx, "is_archived", conversationID, userID, archived)
}

func (r *MembershipRepo) SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error {
	return r.setFlag(ctx, "is_muted", conversationID, userID, muted)
}

// setFlag updates one boolean column; column is always a constant from this file.
func (r *MembershipRepo) setFlag(ctx context.Context, column string, conversationID, userID int64, value bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE memberships SET `+column+` = ?
		WHERE conversation_id = ? AND user_id = ?
	`, value, conversationID, userID)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFound("membership not found")
	}
	return nil
}
