package service

import (
	"context"
	"log/slog"

	"chatcore/internal/domain"
	"chatcore/internal/observability/logging"
)

// ConversationService manages conversations and the caller's memberships.
type ConversationService struct {
	conversations domain.ConversationRepository
	memberships   domain.MembershipRepository
	users         domain.UserRepository
	clock         Clock
	log           *slog.Logger
}

func NewConversationService(
	conversations domain.ConversationRepository,
	memberships domain.MembershipRepository,
	users domain.UserRepository,
	clock Clock,
	log *slog.Logger,
) *ConversationService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &ConversationService{
		conversations: conversations,
		memberships:   memberships,
		users:         users,
		clock:         clock,
		log:           log.With("component", "conversations"),
	}
}

// GetOrCreatePrivateConversation returns the single private conversation
// between a and b regardless of argument order.
func (s *ConversationService) GetOrCreatePrivateConversation(ctx context.Context, a, b int64) (*domain.Conversation, error) {
	c, err := domain.NewPrivateConversation(a, b)
	if err != nil {
		return nil, err
	}
	for _, id := range []int64{a, b} {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, storeError("get user", err)
		}
	}

	c.CreatedAt = s.clock.Now()
	created, err := s.conversations.GetOrCreatePrivate(ctx, c)
	if err != nil {
		return nil, domain.Internal("get or create private conversation", err)
	}
	if created {
		s.log.Info("private conversation created", "conversation_id", c.ID, "user1_id", *c.User1ID, "user2_id", *c.User2ID)
	}
	return c, nil
}

func (s *ConversationService) CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (*domain.Conversation, error) {
	return s.createOwned(ctx, domain.KindGroup, ownerID, name, memberIDs)
}

func (s *ConversationService) CreateChannel(ctx context.Context, ownerID int64, name string, memberIDs []int64) (*domain.Conversation, error) {
	return s.createOwned(ctx, domain.KindChannel, ownerID, name, memberIDs)
}

func (s *ConversationService) createOwned(ctx context.Context, kind domain.ConversationKind, ownerID int64, name string, memberIDs []int64) (*domain.Conversation, error) {
	c, err := domain.NewGroupConversation(kind, ownerID, name)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		return nil, storeError("get owner", err)
	}

	// Owner first, duplicates collapsed.
	seen := map[int64]struct{}{ownerID: {}}
	members := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, storeError("get member", err)
		}
		members = append(members, id)
	}

	c.CreatedAt = s.clock.Now()
	if err := s.conversations.CreateGroup(ctx, c, members); err != nil {
		return nil, domain.Internal("create conversation", err)
	}
	s.log.Info("conversation created", "conversation_id", c.ID, "kind", kind, "owner_id", ownerID, "members", len(members)+1)
	return c, nil
}

// IsAuthorized reports whether userID is a member of conversationID.
func (s *ConversationService) IsAuthorized(ctx context.Context, userID, conversationID int64) (bool, error) {
	ok, err := s.memberships.Exists(ctx, conversationID, userID)
	if err != nil {
		return false, domain.Internal("check membership", err)
	}
	return ok, nil
}

// GetMembership returns the caller's own membership, carrying its archived
// and muted flags.
func (s *ConversationService) GetMembership(ctx context.Context, userID, conversationID int64) (*domain.Membership, error) {
	m, err := s.memberships.Get(ctx, conversationID, userID)
	switch {
	case err == nil:
		return m, nil
	case domain.KindOf(err) == domain.KindNotFound:
		return nil, domain.Forbidden("you are not a member of this conversation")
	default:
		return nil, domain.Internal("get membership", err)
	}
}

// Archive sets the archived flag on the caller's own membership.
func (s *ConversationService) Archive(ctx context.Context, userID, conversationID int64, archived bool) error {
	return s.memberFlag(s.memberships.SetArchived(ctx, conversationID, userID, archived))
}

// Mute sets the muted flag on the caller's own membership.
func (s *ConversationService) Mute(ctx context.Context, userID, conversationID int64, muted bool) error {
	return s.memberFlag(s.memberships.SetMuted(ctx, conversationID, userID, muted))
}

func (s *ConversationService) memberFlag(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.KindOf(err) == domain.KindNotFound:
		return domain.Forbidden("you are not a member of this conversation")
	default:
		return domain.Internal("update membership", err)
	}
}

// GetConversation returns the conversation when userID is a member.
func (s *ConversationService) GetConversation(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	c, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, storeError("get conversation", err)
	}
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return c, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, userID int64, includeArchived bool) ([]*domain.Conversation, error) {
	convs, err := s.conversations.ListForUser(ctx, userID, includeArchived)
	if err != nil {
		return nil, domain.Internal("list conversations", err)
	}
	return convs, nil
}

// AddMember adds userID to a group or channel. Only the owner may add.
func (s *ConversationService) AddMember(ctx context.Context, callerID, conversationID, userID int64) error {
	c, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return storeError("get conversation", err)
	}
	if c.Kind == domain.KindPrivate {
		return domain.Invalid("private conversations have fixed members")
	}
	if c.OwnerID == nil || *c.OwnerID != callerID {
		return domain.Forbidden("only the owner can add members")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return storeError("get user", err)
	}

	if err := s.memberships.Add(ctx, &domain.Membership{
		ConversationID: conversationID,
		UserID:         userID,
		CreatedAt:      s.clock.Now(),
	}); err != nil {
		return domain.Internal("add member", err)
	}
	s.log.Info("member added", "conversation_id", conversationID, "user_id", userID)
	return nil
}

// Members lists memberships of a conversation the caller belongs to.
func (s *ConversationService) Members(ctx context.Context, callerID, conversationID int64) ([]*domain.Membership, error) {
	if err := s.authorize(ctx, callerID, conversationID); err != nil {
		return nil, err
	}
	members, err := s.memberships.List(ctx, conversationID)
	if err != nil {
		return nil, domain.Internal("list members", err)
	}
	return members, nil
}

func (s *ConversationService) authorize(ctx context.Context, userID, conversationID int64) error {
	ok, err := s.IsAuthorized(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Forbidden("you are not a member of this conversation")
	}
	return nil
}
