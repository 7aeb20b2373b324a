package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

type CodeRepo struct {
	db *sql.DB
}

func NewCodeRepo(db *sql.DB) *CodeRepo {
	return &CodeRepo{db: db}
}

var _ domain.VerificationCodeRepository = (*CodeRepo)(nil)

const codeColumns = `token, owner_id, purpose, code_hash, attempts, expire_at, created_at`

const activeCodeQuery = `
	SELECT ` + codeColumns + `
	FROM verification_codes
	WHERE owner_id = $1 AND purpose = $2 AND expire_at >= $3
	ORDER BY created_at DESC
	LIMIT 1
`

var errCodeNotFound = domain.NotFound("verification code not found")

// parseToken maps a malformed token to a miss so lookups can compare the
// uuid column directly.
func parseToken(token string) (uuid.UUID, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return uuid.Nil, errCodeNotFound
	}
	return id, nil
}

// CreateIfNoneActive serializes issuers for one (owner, purpose) with a
// transaction-scoped advisory lock, then checks and inserts under it.
func (r *CodeRepo) CreateIfNoneActive(ctx context.Context, c *domain.VerificationCode, now time.Time) (*domain.VerificationCode, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	lockKey := fmt.Sprintf("vc:%d:%s", c.OwnerID, c.Purpose)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, false, fmt.Errorf("advisory lock: %w", err)
	}

	active, err := scanCode(tx.QueryRowContext(ctx, activeCodeQuery, c.OwnerID, c.Purpose, now))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit: %w", err)
		}
		return active, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("get active code: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verification_codes (`+codeColumns+`)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`, c.Token, c.OwnerID, c.Purpose, c.CodeHash, c.ExpireAt, c.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("insert verification code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	c.Attempts = 0
	return c, true, nil
}

func (r *CodeRepo) GetActive(ctx context.Context, ownerID int64, purpose domain.Purpose, now time.Time) (*domain.VerificationCode, error) {
	return scanCode(r.db.QueryRowContext(ctx, activeCodeQuery, ownerID, purpose, now))
}

func (r *CodeRepo) GetByToken(ctx context.Context, token string, purpose domain.Purpose) (*domain.VerificationCode, error) {
	id, err := parseToken(token)
	if err != nil {
		return nil, err
	}
	return scanCode(r.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM verification_codes
		WHERE token = $1 AND purpose = $2
	`, id, purpose))
}

func (r *CodeRepo) IncrementAttempts(ctx context.Context, token string, limit int) (int, bool, error) {
	id, err := parseToken(token)
	if err != nil {
		return 0, false, err
	}
	var attempts int
	err = r.db.QueryRowContext(ctx, `
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE token = $1 AND attempts < $2
		RETURNING attempts
	`, id, limit).Scan(&attempts)
	if err == nil {
		return attempts, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("increment attempts: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT attempts FROM verification_codes WHERE token = $1`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, errCodeNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, false, nil
}

func (r *CodeRepo) Expire(ctx context.Context, token string, purpose domain.Purpose, at time.Time) error {
	id, err := parseToken(token)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET expire_at = LEAST(expire_at, $1)
		WHERE token = $2 AND purpose = $3
	`, at, id, purpose)
	if err != nil {
		return fmt.Errorf("expire code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errCodeNotFound
	}
	return nil
}

func (r *CodeRepo) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expire_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return res.RowsAffected()
}

func scanCode(row rowScanner) (*domain.VerificationCode, error) {
	c := &domain.VerificationCode{}
	err := row.Scan(&c.Token, &c.OwnerID, &c.Purpose, &c.CodeHash, &c.Attempts, &c.ExpireAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan verification code: %w", err)
	}
	return c, nil
}
