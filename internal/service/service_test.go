package service_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store/sqlite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, code string, destinations []string) {
	m.Called(ctx, code, destinations)
}

type countingHasher struct {
	*security.CodeHasher
	hashes atomic.Int32
}

func (h *countingHasher) Hash(code string) (string, error) {
	h.hashes.Add(1)
	return h.CodeHasher.Hash(code)
}

type env struct {
	db            *sql.DB
	users         *sqlite.UserRepo
	codes         *sqlite.CodeRepo
	clock         *fakeClock
	notifier      *MockNotifier
	hasher        *countingHasher
	verification  *service.VerificationService
	conversations *service.ConversationService
	messages      *service.MessageService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	encryptor, err := security.NewEncryptor([]byte("test-secret"), nil)
	require.NoError(t, err)

	e := &env{
		db:       db,
		users:    sqlite.NewUserRepo(db),
		codes:    sqlite.NewCodeRepo(db),
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		notifier: new(MockNotifier),
		hasher:   &countingHasher{CodeHasher: security.NewCodeHasher(bcrypt.MinCost)},
	}
	convRepo := sqlite.NewConversationRepo(db)
	memberRepo := sqlite.NewMembershipRepo(db)

	e.verification = service.NewVerificationService(
		e.codes,
		e.users,
		e.notifier,
		e.hasher,
		e.clock,
		nil,
		service.VerificationConfig{},
	)
	e.conversations = service.NewConversationService(convRepo, memberRepo, e.users, e.clock, nil)
	e.messages = service.NewMessageService(
		convRepo,
		memberRepo,
		sqlite.NewMessageRepo(db),
		sqlite.NewReceiptRepo(db),
		e.users,
		encryptor,
		e.clock,
		nil,
	)
	return e
}

func (e *env) user(t *testing.T, name string) *domain.User {
	t.Helper()
	email := name + "@example.com"
	u := &domain.User{Username: name, Email: &email, IsActive: true, CreatedAt: e.clock.Now()}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *env) inactiveUser(t *testing.T, name string) *domain.User {
	t.Helper()
	email := name + "@example.com"
	u := &domain.User{Username: name, Email: &email, IsActive: false, CreatedAt: e.clock.Now()}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *env) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(query, args...).Scan(&n))
	return n
}
