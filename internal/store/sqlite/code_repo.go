package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *CodeRepo) CreateIfNoneActive(ctx context.Context, c *domain.VerificationCode, now time.Time) (*domain.VerificationCode, bool, error) {
	// A single statement: SQLite serializes writers, so the existence check
	// and the insert cannot interleave with another issuer.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_codes (`+codeColumns+`)
		SELECT ?, ?, ?, ?, 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM verification_codes
			WHERE owner_id = ? AND purpose = ? AND expire_at >= ?
		)
	`, c.Token, c.OwnerID, c.Purpose, c.CodeHash, toMillis(c.ExpireAt), toMillis(c.CreatedAt),
		c.OwnerID, c.Purpose, toMillis(now))
	if err != nil {
		return nil, false, fmt.Errorf("insert verification code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		c.Attempts = 0
		return c, true, nil
	}

	active, err := r.GetActive(ctx, c.OwnerID, c.Purpose, now)
	if err != nil {
		return nil, false, fmt.Errorf("get active code: %w", err)
	}
	return active, false, nil
}

func (r *CodeRepo) GetActive(ctx context.Context, ownerID int64, purpose domain.Purpose, now time.Time) (*domain.VerificationCode, error) {
	return r.scanCode(r.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM verification_codes
		WHERE owner_id = ? AND purpose = ? AND expire_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`, ownerID, purpose, toMillis(now)))
}

func (r *CodeRepo) GetByToken(ctx context.Context, token string, purpose domain.Purpose) (*domain.VerificationCode, error) {
	return r.scanCode(r.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM verification_codes
		WHERE token = ? AND purpose = ?
	`, token, purpose))
}

func (r *CodeRepo) IncrementAttempts(ctx context.Context, token string, limit int) (int, bool, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE token = ? AND attempts < ?
		RETURNING attempts
	`, token, limit).Scan(&attempts)
	if err == nil {
		return attempts, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("increment attempts: %w", err)
	}

	// Either the cap was reached or the token is gone.
	err = r.db.QueryRowContext(ctx, `SELECT attempts FROM verification_codes WHERE token = ?`, token).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, domain.NotFound("verification code not found")
	}
	if err != nil {
		return 0, false, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, false, nil
}

func (r *CodeRepo) Expire(ctx context.Context, token string, purpose domain.Purpose, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET expire_at = MIN(expire_at, ?)
		WHERE token = ? AND purpose = ?
	`, toMillis(at), token, purpose)
	if err != nil {
		return fmt.Errorf("expire code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFound("verification code not found")
	}
	return nil
}

func (r *CodeRepo) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expire_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return res.RowsAffected()
}

func (r *CodeRepo) scanCode(row rowScanner) (*domain.VerificationCode, error) {
	c := &domain.VerificationCode{}
	var expireAt, createdAt int64
	err := row.Scan(&c.Token, &c.OwnerID, &c.Purpose, &c.CodeHash, &c.Attempts, &expireAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("verification code not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan verification code: %w", err)
	}
	c.ExpireAt = fromMillis(expireAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}
