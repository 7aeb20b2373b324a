package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func insertMembership(ctx context.Context, db execer, conversationID, userID int64, createdAt time.Time) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO memberships (conversation_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, conversationID, userID, createdAt); err != nil {
		return fmt.Errorf("insert membership %d: %w", userID, err)
	}
	return nil
}

func (r *MembershipRepo) Get(ctx context.Context, conversationID, userID int64) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, is_archived, is_muted, created_at
		FROM memberships
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(&m.ConversationID, &m.UserID, &m.IsArchived, &m.IsMuted, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("membership not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (r *MembershipRepo) Exists(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM memberships
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (r *MembershipRepo) List(ctx context.Context, conversationID int64) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, is_archived, is_muted, created_at
		FROM memberships
		WHERE conversation_id = $1
		ORDER BY user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var res []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{}
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.IsArchived, &m.IsMuted, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MembershipRepo) Add(ctx context.Context, m *domain.Membership) error {
	return insertMembership(ctx, r.db, m.ConversationID, m.UserID, m.CreatedAt)
}

func (r *MembershipRepo) SetArchived(ctx context.Context, conversationID, userID int64, archived bool) error {
	return r.exec(ctx, `
		UPDATE memberships SET is_archived = $1
		WHERE conversation_id = $2 AND user_id = $3
	`, archived, conversationID, userID)
}

func (r *MembershipRepo) SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error {
	return r.exec(ctx, `
		UPDATE memberships SET is_muted = $1
		WHERE conversation_id = $2 AND user_id = $3
	`, muted, conversationID, userID)
}

func (r *MembershipRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
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
