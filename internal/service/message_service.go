package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"chatcore/internal/domain"
	"chatcore/internal/observability/logging"
	"chatcore/internal/observability/metrics"
	"chatcore/internal/security"
)

const (
	MaxContentLength = 5000
	DefaultPageSize  = 50
	MaxPageSize      = 200
)

// MessageService posts messages and tracks per-reader receipts.
type MessageService struct {
	conversations domain.ConversationRepository
	memberships   domain.MembershipRepository
	messages      domain.MessageRepository
	receipts      domain.ReceiptRepository
	users         domain.UserRepository
	encryptor     *security.Encryptor
	clock         Clock
	log           *slog.Logger
}

func NewMessageService(
	conversations domain.ConversationRepository,
	memberships domain.MembershipRepository,
	messages domain.MessageRepository,
	receipts domain.ReceiptRepository,
	users domain.UserRepository,
	encryptor *security.Encryptor,
	clock Clock,
	log *slog.Logger,
) *MessageService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &MessageService{
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		receipts:      receipts,
		users:         users,
		encryptor:     encryptor,
		clock:         clock,
		log:           log.With("component", "messages"),
	}
}

func validateContent(typ domain.MessageType, content string) error {
	if !typ.Valid() {
		return domain.Invalid(fmt.Sprintf("unknown message type %q", typ))
	}
	if strings.TrimSpace(content) == "" {
		return domain.Invalid("message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return domain.Invalid(fmt.Sprintf("message content exceeds %d characters", MaxContentLength))
	}
	return nil
}

// PostMessage appends a message to a conversation the sender belongs to. In a
// private conversation the other participant becomes the recipient.
func (s *MessageService) PostMessage(ctx context.Context, senderID, conversationID int64, typ domain.MessageType, content string) (*domain.Message, error) {
	if err := validateContent(typ, content); err != nil {
		return nil, err
	}
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, storeError("get conversation", err)
	}
	if err := s.authorize(ctx, senderID, conversationID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: &conversationID,
		SenderID:       senderID,
		Type:           typ,
	}
	if peer, ok := conv.Peer(senderID); ok {
		msg.RecipientID = &peer
	}
	if err := s.create(ctx, msg, content); err != nil {
		return nil, err
	}
	metrics.MessagesPostedTotal.WithLabelValues(string(conv.Kind)).Inc()
	return msg, nil
}

// PostDirect sends a message addressed to a user without a conversation record.
func (s *MessageService) PostDirect(ctx context.Context, senderID, recipientID int64, typ domain.MessageType, content string) (*domain.Message, error) {
	if senderID == recipientID {
		return nil, domain.Invalid("cannot send a message to yourself")
	}
	if err := validateContent(typ, content); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, recipientID); err != nil {
		return nil, storeError("get recipient", err)
	}

	msg := &domain.Message{
		SenderID:    senderID,
		RecipientID: &recipientID,
		Type:        typ,
	}
	if err := s.create(ctx, msg, content); err != nil {
		return nil, err
	}
	metrics.MessagesPostedTotal.WithLabelValues("direct").Inc()
	return msg, nil
}

// contentScope binds stored content to where the message lives and who sent
// it. Edits keep the scope, so it never includes mutable fields.
func contentScope(msg *domain.Message) []byte {
	if msg.ConversationID != nil {
		return []byte(fmt.Sprintf("conversation:%d:sender:%d", *msg.ConversationID, msg.SenderID))
	}
	var recipient int64
	if msg.RecipientID != nil {
		recipient = *msg.RecipientID
	}
	return []byte(fmt.Sprintf("direct:%d:sender:%d", recipient, msg.SenderID))
}

func (s *MessageService) create(ctx context.Context, msg *domain.Message, content string) error {
	encrypted, err := s.encryptor.Encrypt(content, contentScope(msg))
	if err != nil {
		return domain.Internal("encrypt content", err)
	}
	msg.Content = encrypted
	msg.CreatedAt = s.clock.Now()
	if err := s.messages.Create(ctx, msg); err != nil {
		return domain.Internal("store message", err)
	}
	msg.Content = content
	s.log.Debug("message posted", "message_id", msg.ID, "sender_id", msg.SenderID)
	return nil
}

// EditMessage replaces the content of a message. Only the sender may edit.
func (s *MessageService) EditMessage(ctx context.Context, callerID, messageID int64, content string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeError("get message", err)
	}
	if err := validateContent(msg.Type, content); err != nil {
		return nil, err
	}
	if msg.SenderID != callerID {
		return nil, domain.Forbidden("only the sender can edit a message")
	}

	encrypted, err := s.encryptor.Encrypt(content, contentScope(msg))
	if err != nil {
		return nil, domain.Internal("encrypt content", err)
	}
	now := s.clock.Now()
	if err := s.messages.UpdateContent(ctx, messageID, encrypted, now); err != nil {
		return nil, storeError("update message", err)
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = now
	return msg, nil
}

// MarkSeen records that readerID has seen the message. Repeated calls return
// the existing receipt without side effects.
func (s *MessageService) MarkSeen(ctx context.Context, readerID, messageID int64) (*domain.MessageSee, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeError("get message", err)
	}
	if err := s.canRead(ctx, readerID, msg); err != nil {
		return nil, err
	}

	receipt, created, err := s.receipts.MarkSeen(ctx, messageID, readerID, s.clock.Now())
	if err != nil {
		return nil, domain.Internal("mark seen", err)
	}
	if created {
		metrics.ReceiptsCreatedTotal.Inc()
		s.log.Debug("message seen", "message_id", messageID, "reader_id", readerID)
	}
	return receipt, nil
}

// React toggles the reader's reaction, marking the message seen first.
func (s *MessageService) React(ctx context.Context, readerID, messageID int64, reacted bool) (*domain.MessageSee, error) {
	receipt, err := s.MarkSeen(ctx, readerID, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.receipts.SetReacted(ctx, messageID, readerID, reacted, s.clock.Now()); err != nil {
		return nil, storeError("set reacted", err)
	}
	receipt.IsReacted = reacted
	return receipt, nil
}

// GetReceipt returns readerID's receipt for the message.
func (s *MessageService) GetReceipt(ctx context.Context, readerID, messageID int64) (*domain.MessageSee, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeError("get message", err)
	}
	if err := s.canRead(ctx, readerID, msg); err != nil {
		return nil, err
	}
	receipt, err := s.receipts.Get(ctx, messageID, readerID)
	if err != nil {
		return nil, storeError("get receipt", err)
	}
	return receipt, nil
}

// SeenByCount returns how many receipts the message has. Only the sender may
// ask.
func (s *MessageService) SeenByCount(ctx context.Context, callerID, messageID int64) (int, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return 0, storeError("get message", err)
	}
	if msg.SenderID != callerID {
		return 0, domain.Forbidden("only the sender can see who read a message")
	}
	n, err := s.receipts.CountForMessage(ctx, messageID)
	if err != nil {
		return 0, domain.Internal("count receipts", err)
	}
	return n, nil
}

// GetUnreadCount counts messages from senderID to recipientID not yet seen.
func (s *MessageService) GetUnreadCount(ctx context.Context, senderID, recipientID int64) (int, error) {
	n, err := s.messages.CountFromTo(ctx, senderID, recipientID, true)
	if err != nil {
		return 0, domain.Internal("count unread", err)
	}
	return n, nil
}

// CountUnreadInConversation counts messages from others that userID has no
// receipt for.
func (s *MessageService) CountUnreadInConversation(ctx context.Context, conversationID, userID int64) (int, error) {
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnreadInConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, domain.Internal("count unread", err)
	}
	return n, nil
}

// ListMessages returns up to limit most recent messages, oldest first.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, userID int64, limit int) ([]*domain.Message, error) {
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListForConversation(ctx, conversationID, pageSize(limit))
	if err != nil {
		return nil, domain.Internal("list messages", err)
	}
	return s.decryptAll(msgs)
}

// ListDirect returns the shorthand messages exchanged by two users, oldest first.
func (s *MessageService) ListDirect(ctx context.Context, userID, peerID int64, limit int) ([]*domain.Message, error) {
	msgs, err := s.messages.ListDirect(ctx, userID, peerID, pageSize(limit))
	if err != nil {
		return nil, domain.Internal("list messages", err)
	}
	return s.decryptAll(msgs)
}

func (s *MessageService) decryptAll(msgs []*domain.Message) ([]*domain.Message, error) {
	slices.Reverse(msgs)
	for _, m := range msgs {
		plain, err := s.encryptor.Decrypt(m.Content, contentScope(m))
		if err != nil {
			return nil, domain.Internal(fmt.Sprintf("decrypt message %d", m.ID), err)
		}
		m.Content = plain
	}
	return msgs, nil
}

func (s *MessageService) canRead(ctx context.Context, userID int64, msg *domain.Message) error {
	if msg.ConversationID != nil {
		return s.authorize(ctx, userID, *msg.ConversationID)
	}
	if msg.SenderID == userID || (msg.RecipientID != nil && *msg.RecipientID == userID) {
		return nil
	}
	return domain.Forbidden("you cannot access this message")
}

func (s *MessageService) authorize(ctx context.Context, userID, conversationID int64) error {
	ok, err := s.memberships.Exists(ctx, conversationID, userID)
	if err != nil {
		return domain.Internal("check membership", err)
	}
	if !ok {
		return domain.Forbidden("you are not a member of this conversation")
	}
	return nil
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
