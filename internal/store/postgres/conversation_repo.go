package postgres

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

	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (kind, name, user1_id, user2_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, domain.KindPrivate, c.Name, *c.User1ID, *c.User2ID, c.CreatedAt).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race or already present: read the committed row.
		existing, err := scanConversation(tx.QueryRowContext(ctx, `
			SELECT `+conversationColumns+`
			FROM conversations c
			WHERE c.kind = $1 AND c.user1_id = $2 AND c.user2_id = $3
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
	if err != nil {
		return false, fmt.Errorf("insert private conversation: %w", err)
	}

	for _, uid := range []int64{*c.User1ID, *c.User2ID} {
		if err := insertMembership(ctx, tx, c.ID, uid, c.CreatedAt); err != nil {
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

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations (kind, name, image, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at
	`, c.Kind, c.Name, c.Image, *c.OwnerID, c.CreatedAt).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, uid := range append([]int64{*c.OwnerID}, memberIDs...) {
		if err := insertMembership(ctx, tx, c.ID, uid, c.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = $1
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
		WHERE m.user_id = $1 AND ($2::boolean OR m.is_archived = FALSE)
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

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.Kind,
		&c.Name,
		&c.Image,
		&c.OwnerID,
		&c.User1ID,
		&c.User2ID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}
