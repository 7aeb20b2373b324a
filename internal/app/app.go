package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/notify"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlite"
)

// App holds the wired services for one process.
type App struct {
	DB            *sql.DB
	Verification  *service.VerificationService
	Conversations *service.ConversationService
	Messages      *service.MessageService

	dispatcher *notify.Dispatcher
	log        *slog.Logger
}

type repositories struct {
	users         domain.UserRepository
	codes         domain.VerificationCodeRepository
	conversations domain.ConversationRepository
	memberships   domain.MembershipRepository
	messages      domain.MessageRepository
	receipts      domain.ReceiptRepository
}

func newRepositories(driver string, db *sql.DB) (repositories, error) {
	switch driver {
	case "sqlite":
		return repositories{
			users:         sqlite.NewUserRepo(db),
			codes:         sqlite.NewCodeRepo(db),
			conversations: sqlite.NewConversationRepo(db),
			memberships:   sqlite.NewMembershipRepo(db),
			messages:      sqlite.NewMessageRepo(db),
			receipts:      sqlite.NewReceiptRepo(db),
		}, nil
	case "postgres":
		return repositories{
			users:         postgres.NewUserRepo(db),
			codes:         postgres.NewCodeRepo(db),
			conversations: postgres.NewConversationRepo(db),
			memberships:   postgres.NewMembershipRepo(db),
			messages:      postgres.NewMessageRepo(db),
			receipts:      postgres.NewReceiptRepo(db),
		}, nil
	default:
		return repositories{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenDB opens the configured database without migrating it.
func OpenDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "postgres":
		return postgres.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func Migrate(driver string, db *sql.DB) error {
	switch driver {
	case "sqlite":
		return sqlite.Migrate(db)
	case "postgres":
		return postgres.Migrate(db)
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
}

// New opens and migrates the database and wires every service. Verification
// codes are delivered through sender via a queued dispatcher.
func New(cfg *config.Config, sender notify.Sender, log *slog.Logger) (*App, error) {
	db, err := OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := Migrate(cfg.Database.Driver, db); err != nil {
		db.Close()
		return nil, err
	}

	repos, err := newRepositories(cfg.Database.Driver, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	encryptor, err := security.NewEncryptor([]byte(cfg.Security.EncryptionKey), cfg.Security.LegacyKeys)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize encryptor: %w", err)
	}

	dispatcher := notify.NewDispatcher(sender, notify.Config{
		QueueSize:      cfg.Notify.QueueSize,
		Workers:        cfg.Notify.Workers,
		RatePerSecond:  cfg.Notify.RatePerSecond,
		MaxRetries:     cfg.Notify.MaxRetries,
		InitialBackoff: cfg.Notify.InitialBackoff,
		SendTimeout:    cfg.Notify.SendTimeout,
	}, log)

	clock := service.SystemClock{}
	return &App{
		DB: db,
		Verification: service.NewVerificationService(
			repos.codes,
			repos.users,
			dispatcher,
			security.NewCodeHasher(cfg.Security.CodeHashCost),
			clock,
			log,
			service.VerificationConfig{
				TTL:         cfg.Verification.TTL,
				CodeLength:  cfg.Verification.CodeLength,
				MaxAttempts: cfg.Verification.MaxAttempts,
			},
		),
		Conversations: service.NewConversationService(repos.conversations, repos.memberships, repos.users, clock, log),
		Messages: service.NewMessageService(
			repos.conversations,
			repos.memberships,
			repos.messages,
			repos.receipts,
			repos.users,
			encryptor,
			clock,
			log,
		),
		dispatcher: dispatcher,
		log:        log,
	}, nil
}

// RunPurger deletes expired codes every interval until ctx is cancelled.
func (a *App) RunPurger(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Verification.PurgeExpired(ctx, retention); err != nil {
				a.log.Error("purge expired codes failed", "error", err)
			}
		}
	}
}

// Close drains pending notifications and closes the database.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.dispatcher.Close(ctx), a.DB.Close())
}
