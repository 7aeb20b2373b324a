package domain

import (
	"context"
	"time"
)

// UserRepository is the read-only identity lookup used by the core.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// VerificationCodeRepository defines persistence operations for verification codes.
type VerificationCodeRepository interface {
	// CreateIfNoneActive inserts c unless a code with expire_at >= now already
	// exists for (c.OwnerID, c.Purpose). It returns the active row and whether
	// it was created by this call.
	CreateIfNoneActive(ctx context.Context, c *VerificationCode, now time.Time) (*VerificationCode, bool, error)
	// GetActive returns the newest code for (ownerID, purpose) with
	// expire_at >= now, or ErrNotFound.
	GetActive(ctx context.Context, ownerID int64, purpose Purpose, now time.Time) (*VerificationCode, error)
	GetByToken(ctx context.Context, token string, purpose Purpose) (*VerificationCode, error)
	// IncrementAttempts atomically adds one attempt while attempts < limit and
	// returns the new value. ok is false when the cap was already reached.
	IncrementAttempts(ctx context.Context, token string, limit int) (attempts int, ok bool, err error)
	Expire(ctx context.Context, token string, purpose Purpose, at time.Time) error
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// GetOrCreatePrivate looks up the private conversation for c's canonical
	// pair, creating it and both memberships when absent. c is filled in.
	GetOrCreatePrivate(ctx context.Context, c *Conversation) (created bool, err error)
	CreateGroup(ctx context.Context, c *Conversation, memberIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64, includeArchived bool) ([]*Conversation, error)
}

// MembershipRepository defines operations around conversation memberships.
type MembershipRepository interface {
	Get(ctx context.Context, conversationID, userID int64) (*Membership, error)
	Exists(ctx context.Context, conversationID, userID int64) (bool, error)
	List(ctx context.Context, conversationID int64) ([]*Membership, error)
	Add(ctx context.Context, m *Membership) error
	SetArchived(ctx context.Context, conversationID, userID int64, archived bool) error
	SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	UpdateContent(ctx context.Context, id int64, content string, at time.Time) error
	ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*Message, error)
	ListDirect(ctx context.Context, userA, userB int64, limit int) ([]*Message, error)
	CountFromTo(ctx context.Context, senderID, recipientID int64, unseenOnly bool) (int, error)
	CountUnreadInConversation(ctx context.Context, conversationID, userID int64) (int, error)
}

// ReceiptRepository defines operations for per-reader message receipts.
type ReceiptRepository interface {
	// MarkSeen inserts the (message, reader) receipt if absent and, only when
	// it was created, flips the message's shared seen flag for any reader
	// other than the sender when the flag is unset or the reader is the
	// designated recipient.
	MarkSeen(ctx context.Context, messageID, readerID int64, at time.Time) (*MessageSee, bool, error)
	Get(ctx context.Context, messageID, userID int64) (*MessageSee, error)
	CountForMessage(ctx context.Context, messageID int64) (int, error)
	// SetReacted updates the receipt in place and recomputes the message's
	// reacted flag from all receipts.
	SetReacted(ctx context.Context, messageID, userID int64, reacted bool, at time.Time) error
}
