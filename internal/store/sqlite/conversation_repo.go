package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatcore/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `c.id, c.kind, c.name, c.image, c.owner_id, c.user1_id, c.user2_id, c.created_at, c.updated_at`

func (r *ConversationRepo) GetOrCreatePrivate(ctx context.Context, c *domain.Conversation) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (kind, name, image, owner_id, user1_id, user2_id, created_at, updated_at)
		VALUES (?, ?, NULL, NULL, ?, ?, ?, ?)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
	`, domain.KindPrivate, c.Name, *c.User1ID, *c.User2ID, toMillis(c.CreatedAt), toMillis(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert private conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		existing, err := scanConversation(tx.QueryRowContext(ctx, `
			SELECT `+conversationColumns+`
			FROM conversations c
			WHERE c.kind = ? AND c.user1_id = ? AND c.user2_id = ?
		`, domain.KindPrivate, *c.User1ID, *c.User2ID))
		if err != nil {
			return false, fmt.Errorf("get private conversation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit: %w", err)
		}
		*c = *existing
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.UpdatedAt = c.CreatedAt
	for _, uid := range []int64{*c.User1ID, *c.User2ID} {
		if err := insertMembership(ctx, tx, id, uid, toMillis(c.CreatedAt)); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (r *ConversationRepo) CreateGroup(ctx context.Context, c *domain.Conversation, memberIDs []int64) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (kind, name, image, owner_id, user1_id, user2_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, NULL, ?, ?)
	`, c.Kind, c.Name, c.Image, *c.OwnerID, toMillis(c.CreatedAt), toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.UpdatedAt = c.CreatedAt

	if err := insertMembership(ctx, tx, id, *c.OwnerID, toMillis(c.CreatedAt)); err != nil {
		return err
	}
	for _, uid := range memberIDs {
		if err := insertMembership(ctx, tx, id, uid, toMillis(c.CreatedAt)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = ?
	`, id))
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64, includeArchived bool) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN memberships m ON m.conversation_id = c.id
		WHERE m.user_id = ? AND (? OR m.is_archived = 0)
		ORDER BY c.updated_at DESC, c.id DESC
	`, userID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var owner, user1, user2 sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&c.ID,
		&c.Kind,
		&c.Name,
		&c.Image,
		&owner,
		&user1,
		&user2,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.OwnerID = fromNullInt(owner)
	c.User1ID = fromNullInt(user1)
	c.User2ID = fromNullInt(user2)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}
