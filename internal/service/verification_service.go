package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/observability/logging"
	"chatcore/internal/observability/metrics"
	"chatcore/internal/security"
)

const (
	DefaultCodeTTL     = 2 * time.Minute
	DefaultCodeLength  = 5
	DefaultMaxAttempts = 3
)

// CodeHasher hashes codes for storage and compares submissions against them.
type CodeHasher interface {
	Hash(code string) (string, error)
	Matches(code, hashed string) (bool, error)
}

type VerificationConfig struct {
	TTL         time.Duration
	CodeLength  int
	MaxAttempts int
}

func (c VerificationConfig) withDefaults() VerificationConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultCodeTTL
	}
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// VerificationService issues, validates and consumes one-time codes.
type VerificationService struct {
	codes    domain.VerificationCodeRepository
	users    domain.UserRepository
	notifier Notifier
	hasher   CodeHasher
	clock    Clock
	log      *slog.Logger
	cfg      VerificationConfig
}

func NewVerificationService(
	codes domain.VerificationCodeRepository,
	users domain.UserRepository,
	notifier Notifier,
	hasher CodeHasher,
	clock Clock,
	log *slog.Logger,
	cfg VerificationConfig,
) *VerificationService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &VerificationService{
		codes:    codes,
		users:    users,
		notifier: notifier,
		hasher:   hasher,
		clock:    clock,
		log:      log.With("component", "verification"),
		cfg:      cfg.withDefaults(),
	}
}

// Issue returns the active code for (ownerID, purpose), creating and
// dispatching a new one when none is active. Code is only populated on a
// freshly created result.
func (s *VerificationService) Issue(ctx context.Context, ownerID int64, purpose domain.Purpose) (*domain.VerificationCode, error) {
	if !purpose.Valid() {
		return nil, domain.Invalid(fmt.Sprintf("unknown purpose %q", purpose))
	}
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, storeError("get owner", err)
	}
	return s.issue(ctx, owner, purpose)
}

// IssueForEmail resolves the owner by email and issues a code for them.
func (s *VerificationService) IssueForEmail(ctx context.Context, email string, purpose domain.Purpose) (*domain.VerificationCode, error) {
	if !purpose.Valid() {
		return nil, domain.Invalid(fmt.Sprintf("unknown purpose %q", purpose))
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.Invalid("email is required")
	}
	owner, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, storeError("get owner by email", err)
	}
	return s.issue(ctx, owner, purpose)
}

func (s *VerificationService) issue(ctx context.Context, owner *domain.User, purpose domain.Purpose) (*domain.VerificationCode, error) {
	// Registration verifies accounts that are not active yet; a reset needs
	// an active one.
	if purpose == domain.PurposeResetPassword && !owner.IsActive {
		return nil, domain.NotFound("no active account found")
	}

	now := s.clock.Now()
	active, err := s.codes.GetActive(ctx, owner.ID, purpose, now)
	switch {
	case err == nil:
		return s.reused(active, purpose), nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, domain.Internal("get active code", err)
	}

	code, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return nil, domain.Internal("generate code", err)
	}
	hashed, err := s.hasher.Hash(code)
	if err != nil {
		return nil, domain.Internal("hash code", err)
	}

	candidate := &domain.VerificationCode{
		Token:     security.NewToken(),
		OwnerID:   owner.ID,
		Purpose:   purpose,
		CodeHash:  hashed,
		ExpireAt:  now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	vc, created, err := s.codes.CreateIfNoneActive(ctx, candidate, now)
	if err != nil {
		return nil, domain.Internal("store verification code", err)
	}
	if !created {
		return s.reused(vc, purpose), nil
	}

	vc.Code = code
	metrics.CodesIssuedTotal.WithLabelValues(string(purpose), "created").Inc()
	s.log.Info("verification code issued", "owner_id", owner.ID, "purpose", purpose, "expire_at", vc.ExpireAt)

	var destinations []string
	if owner.Email != nil && *owner.Email != "" {
		destinations = append(destinations, *owner.Email)
	}
	if len(destinations) == 0 {
		s.log.Warn("owner has no delivery destination", "owner_id", owner.ID)
		return vc, nil
	}
	s.notifier.Notify(ctx, code, destinations)
	return vc, nil
}

func (s *VerificationService) reused(vc *domain.VerificationCode, purpose domain.Purpose) *domain.VerificationCode {
	metrics.CodesIssuedTotal.WithLabelValues(string(purpose), "reused").Inc()
	s.log.Debug("reusing active verification code", "owner_id", vc.OwnerID, "purpose", purpose)
	return vc
}

// Validate checks submitted against the code addressed by token. It does not
// consume the code; callers do that once the guarded action succeeds.
func (s *VerificationService) Validate(ctx context.Context, token string, purpose domain.Purpose, submitted string) (int64, error) {
	if !security.IsNumeric(submitted, s.cfg.CodeLength) {
		return 0, domain.Invalid(fmt.Sprintf("code must be %d digits", s.cfg.CodeLength))
	}
	vc, err := s.codes.GetByToken(ctx, token, purpose)
	if err != nil {
		return 0, storeError("get verification code", err)
	}

	now := s.clock.Now()
	if vc.IsExpired(now) {
		s.recordValidation(purpose, domain.KindExpired)
		return 0, domain.ErrExpired
	}
	if vc.Attempts >= s.cfg.MaxAttempts {
		s.recordValidation(purpose, domain.KindTooManyAttempts)
		return 0, domain.ErrTooManyAttempts
	}

	ok, err := s.hasher.Matches(submitted, vc.CodeHash)
	if err != nil {
		return 0, domain.Internal("compare code", err)
	}
	if ok {
		s.recordValidation(purpose, "ok")
		return vc.OwnerID, nil
	}

	attempts, incremented, err := s.codes.IncrementAttempts(ctx, token, s.cfg.MaxAttempts)
	if err != nil {
		return 0, storeError("record attempt", err)
	}
	if !incremented {
		s.recordValidation(purpose, domain.KindTooManyAttempts)
		return 0, domain.ErrTooManyAttempts
	}
	s.log.Info("wrong verification code", "owner_id", vc.OwnerID, "purpose", purpose, "attempts", attempts)
	s.recordValidation(purpose, domain.KindWrongCode)
	return 0, domain.ErrWrongCode
}

// Consume expires the code immediately.
func (s *VerificationService) Consume(ctx context.Context, token string, purpose domain.Purpose) error {
	if err := s.codes.Expire(ctx, token, purpose, s.clock.Now()); err != nil {
		return storeError("consume verification code", err)
	}
	return nil
}

// PurgeExpired deletes codes that expired more than olderThan ago.
func (s *VerificationService) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.codes.DeleteExpiredBefore(ctx, s.clock.Now().Add(-olderThan))
	if err != nil {
		return 0, domain.Internal("purge expired codes", err)
	}
	if n > 0 {
		metrics.CodesPurgedTotal.Add(float64(n))
		s.log.Info("purged expired verification codes", "count", n)
	}
	return n, nil
}

func (s *VerificationService) recordValidation(purpose domain.Purpose, result domain.Kind) {
	metrics.CodeValidationsTotal.WithLabelValues(string(purpose), string(result)).Inc()
}
