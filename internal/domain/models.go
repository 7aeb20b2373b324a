package domain

import (
	"strings"
	"time"
)

// User represents an application user as seen by the core (read-only).
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     *string   `db:"email" json:"email,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Purpose is the reason a verification code was issued.
type Purpose string

const (
	PurposeRegister      Purpose = "register"
	PurposeResetPassword Purpose = "reset_password"
)

func (p Purpose) Valid() bool {
	return p == PurposeRegister || p == PurposeResetPassword
}

// VerificationCode is a one-time numeric code addressed by an opaque token.
type VerificationCode struct {
	Token     string    `db:"token" json:"token"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	Purpose   Purpose   `db:"purpose" json:"purpose"`
	CodeHash  string    `db:"code_hash" json:"-"`
	Attempts  int       `db:"attempts" json:"attempts"`
	ExpireAt  time.Time `db:"expire_at" json:"expire_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Code is the plaintext secret. Only set on the value returned by the
	// call that created the code; never persisted.
	Code string `db:"-" json:"-"`
}

// IsExpired reports whether the code is inert at now.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return c.ExpireAt.Before(now)
}

// ConversationKind tags the conversation variant.
type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindGroup   ConversationKind = "group"
	KindChannel ConversationKind = "channel"
)

// Conversation is either a private pair (User1ID < User2ID, no owner) or a
// group/channel (OwnerID and Name set).
type Conversation struct {
	ID        int64            `db:"id" json:"id"`
	Kind      ConversationKind `db:"kind" json:"kind"`
	Name      string           `db:"name" json:"name"`
	Image     *string          `db:"image" json:"image,omitempty"`
	OwnerID   *int64           `db:"owner_id" json:"owner_id,omitempty"`
	User1ID   *int64           `db:"user1_id" json:"user1_id,omitempty"`
	User2ID   *int64           `db:"user2_id" json:"user2_id,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// NewPrivateConversation builds the canonical private conversation for an
// unordered pair of users.
func NewPrivateConversation(a, b int64) (*Conversation, error) {
	if a == b {
		return nil, Invalid("a private conversation needs two distinct users")
	}
	if a > b {
		a, b = b, a
	}
	return &Conversation{Kind: KindPrivate, User1ID: &a, User2ID: &b}, nil
}

// NewGroupConversation builds a group or channel owned by ownerID.
func NewGroupConversation(kind ConversationKind, ownerID int64, name string) (*Conversation, error) {
	if kind != KindGroup && kind != KindChannel {
		return nil, Invalid("unsupported conversation kind")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Invalid("name must not be blank")
	}
	if len([]rune(name)) > 255 {
		return nil, Invalid("name exceeds 255 characters")
	}
	return &Conversation{Kind: kind, Name: name, OwnerID: &ownerID}, nil
}

// Validate checks the kind-specific required fields.
func (c *Conversation) Validate() error {
	switch c.Kind {
	case KindPrivate:
		if c.User1ID == nil || c.User2ID == nil || *c.User1ID >= *c.User2ID || c.OwnerID != nil {
			return Invalid("private conversation requires an ordered user pair and no owner")
		}
	case KindGroup, KindChannel:
		if c.OwnerID == nil || strings.TrimSpace(c.Name) == "" || c.User1ID != nil || c.User2ID != nil {
			return Invalid("group conversation requires an owner and a name")
		}
	default:
		return Invalid("unsupported conversation kind")
	}
	return nil
}

// Peer returns the other participant of a private conversation.
func (c *Conversation) Peer(userID int64) (int64, bool) {
	if c.Kind != KindPrivate || c.User1ID == nil || c.User2ID == nil {
		return 0, false
	}
	switch userID {
	case *c.User1ID:
		return *c.User2ID, true
	case *c.User2ID:
		return *c.User1ID, true
	}
	return 0, false
}

// Membership relates a user to a conversation.
type Membership struct {
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	IsArchived     bool      `db:"is_archived" json:"is_archived"`
	IsMuted        bool      `db:"is_muted" json:"is_muted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MessageType is the payload kind of a message.
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageVideo MessageType = "VIDEO"
	MessageAudio MessageType = "AUDIO"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio:
		return true
	}
	return false
}

// Message represents a single chat message. It belongs to a conversation, or
// (private shorthand) only to a sender/recipient pair.
//
// IsSeen is one shared flag: for group messages it is set by the first
// reader, while per-reader state lives in MessageSee rows.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID *int64      `db:"conversation_id" json:"conversation_id,omitempty"`
	SenderID       int64       `db:"sender_id" json:"sender_id"`
	RecipientID    *int64      `db:"recipient_id" json:"recipient_id,omitempty"`
	Type           MessageType `db:"type" json:"type"`
	Content        string      `db:"content" json:"content"` // encrypted at rest
	IsSeen         bool        `db:"is_seen" json:"is_seen"`
	SeenAt         *time.Time  `db:"seen_at" json:"seen_at,omitempty"`
	IsEdited       bool        `db:"is_edited" json:"is_edited"`
	IsReacted      bool        `db:"is_reacted" json:"is_reacted"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// MessageSee is a per-reader receipt for a message.
type MessageSee struct {
	MessageID int64     `db:"message_id" json:"message_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	IsReacted bool      `db:"is_reacted" json:"is_reacted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
