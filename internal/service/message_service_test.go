package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
)

func TestDirectMessageSeenScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sender := e.user(t, "sender")
	recipient := e.user(t, "recipient")

	msg, err := e.messages.PostDirect(ctx, sender.ID, recipient.ID, domain.MessageText, "hi")
	require.NoError(t, err)
	assert.False(t, msg.IsSeen)
	assert.Nil(t, msg.ConversationID)
	assert.Equal(t, "hi", msg.Content)

	unread, err := e.messages.GetUnreadCount(ctx, sender.ID, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	seenAt := e.clock.Now().Add(time.Minute)
	e.clock.Advance(time.Minute)
	receipt, err := e.messages.MarkSeen(ctx, recipient.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, recipient.ID, receipt.UserID)

	e.clock.Advance(time.Minute)
	again, err := e.messages.MarkSeen(ctx, recipient.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.CreatedAt, again.CreatedAt)

	assert.Equal(t, 1, e.countRows(t, `SELECT COUNT(*) FROM message_sees WHERE message_id = ? AND user_id = ?`, msg.ID, recipient.ID))

	list, err := e.messages.ListDirect(ctx, sender.ID, recipient.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsSeen)
	require.NotNil(t, list[0].SeenAt)
	assert.Equal(t, seenAt, *list[0].SeenAt)

	unread, err = e.messages.GetUnreadCount(ctx, sender.ID, recipient.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestPostDirectValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")

	_, err := e.messages.PostDirect(ctx, alice.ID, alice.ID, domain.MessageText, "me")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.messages.PostDirect(ctx, alice.ID, 999, domain.MessageText, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostMessagePrivateConversation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	c, err := e.conversations.GetOrCreatePrivateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := e.messages.PostMessage(ctx, alice.ID, c.ID, domain.MessageText, "secret words")
	require.NoError(t, err)
	require.NotNil(t, msg.RecipientID)
	assert.Equal(t, bob.ID, *msg.RecipientID)

	var stored string
	require.NoError(t, e.db.QueryRow(`SELECT content FROM messages WHERE id = ?`, msg.ID).Scan(&stored))
	assert.NotContains(t, stored, "secret words")

	list, err := e.messages.ListMessages(ctx, c.ID, bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "secret words", list[0].Content)

	// The sender's own receipt never flips the shared flag.
	_, err = e.messages.MarkSeen(ctx, alice.ID, msg.ID)
	require.NoError(t, err)
	unread, err := e.messages.GetUnreadCount(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	_, err = e.messages.MarkSeen(ctx, bob.ID, msg.ID)
	require.NoError(t, err)
	unread, err = e.messages.GetUnreadCount(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestContentValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	g, err := e.conversations.CreateGroup(ctx, alice.ID, "Team", nil)
	require.NoError(t, err)

	cases := map[string]struct {
		typ     domain.MessageType
		content string
	}{
		"Empty":       {domain.MessageText, ""},
		"Whitespace":  {domain.MessageText, "   "},
		"TooLong":     {domain.MessageText, strings.Repeat("é", 5001)},
		"UnknownType": {domain.MessageType("STICKER"), "hi"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.messages.PostMessage(ctx, alice.ID, g.ID, tc.typ, tc.content)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	_, err = e.messages.PostMessage(ctx, alice.ID, g.ID, domain.MessageText, strings.Repeat("é", 5000))
	assert.NoError(t, err)

	_, err = e.messages.PostMessage(ctx, alice.ID, 999, domain.MessageText, "hi")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkSeenAccess(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	eve := e.user(t, "eve")

	direct, err := e.messages.PostDirect(ctx, alice.ID, bob.ID, domain.MessageText, "hi")
	require.NoError(t, err)
	_, err = e.messages.MarkSeen(ctx, eve.ID, direct.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	g, err := e.conversations.CreateGroup(ctx, alice.ID, "Team", []int64{bob.ID})
	require.NoError(t, err)
	msg, err := e.messages.PostMessage(ctx, alice.ID, g.ID, domain.MessageText, "hello team")
	require.NoError(t, err)
	_, err = e.messages.MarkSeen(ctx, eve.ID, msg.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.messages.MarkSeen(ctx, bob.ID, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGroupUnreadAndReactions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.user(t, "owner")
	bob := e.user(t, "bob")
	carol := e.user(t, "carol")

	g, err := e.conversations.CreateGroup(ctx, owner.ID, "Team", []int64{bob.ID, carol.ID})
	require.NoError(t, err)

	var posted []*domain.Message
	for _, text := range []string{"one", "two", "three"} {
		e.clock.Advance(time.Second)
		m, err := e.messages.PostMessage(ctx, owner.ID, g.ID, domain.MessageText, text)
		require.NoError(t, err)
		posted = append(posted, m)
	}

	n, err := e.messages.CountUnreadInConversation(ctx, g.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	receipt, err := e.messages.React(ctx, bob.ID, posted[0].ID, true)
	require.NoError(t, err)
	assert.True(t, receipt.IsReacted)

	n, err = e.messages.CountUnreadInConversation(ctx, g.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = e.messages.CountUnreadInConversation(ctx, g.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := e.messages.ListMessages(ctx, g.ID, carol.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "one", list[0].Content)
	assert.Equal(t, "three", list[2].Content)
	assert.True(t, list[0].IsSeen)
	assert.True(t, list[0].IsReacted)
	assert.False(t, list[1].IsSeen)

	got, err := e.messages.GetReceipt(ctx, bob.ID, posted[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsReacted)
	_, err = e.messages.GetReceipt(ctx, carol.ID, posted[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.messages.MarkSeen(ctx, carol.ID, posted[0].ID)
	require.NoError(t, err)
	seenBy, err := e.messages.SeenByCount(ctx, owner.ID, posted[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, seenBy)
	_, err = e.messages.SeenByCount(ctx, bob.ID, posted[0].ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.messages.React(ctx, bob.ID, posted[0].ID, false)
	require.NoError(t, err)
	list, err = e.messages.ListMessages(ctx, g.ID, carol.ID, 0)
	require.NoError(t, err)
	assert.False(t, list[0].IsReacted)

	_, err = e.messages.CountUnreadInConversation(ctx, g.ID, e.user(t, "eve").ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEditMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	g, err := e.conversations.CreateGroup(ctx, alice.ID, "Team", []int64{bob.ID})
	require.NoError(t, err)
	msg, err := e.messages.PostMessage(ctx, alice.ID, g.ID, domain.MessageText, "frist")
	require.NoError(t, err)

	_, err = e.messages.EditMessage(ctx, bob.ID, msg.ID, "hijack")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.messages.EditMessage(ctx, alice.ID, msg.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	edited, err := e.messages.EditMessage(ctx, alice.ID, msg.ID, "first")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "first", edited.Content)

	list, err := e.messages.ListMessages(ctx, g.ID, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].Content)
	assert.True(t, list[0].IsEdited)
	assert.False(t, list[0].IsSeen)

	_, err = e.messages.EditMessage(ctx, alice.ID, 999, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContentBoundToConversation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	first, err := e.conversations.CreateGroup(ctx, alice.ID, "First", []int64{bob.ID})
	require.NoError(t, err)
	second, err := e.conversations.CreateGroup(ctx, alice.ID, "Second", []int64{bob.ID})
	require.NoError(t, err)

	secret, err := e.messages.PostMessage(ctx, alice.ID, first.ID, domain.MessageText, "for first only")
	require.NoError(t, err)
	other, err := e.messages.PostMessage(ctx, alice.ID, second.ID, domain.MessageText, "hello second")
	require.NoError(t, err)

	_, err = e.db.Exec(`UPDATE messages SET content = (SELECT content FROM messages WHERE id = ?) WHERE id = ?`, secret.ID, other.ID)
	require.NoError(t, err)

	_, err = e.messages.ListMessages(ctx, second.ID, bob.ID, 10)
	assert.ErrorIs(t, err, domain.ErrInternal)

	list, err := e.messages.ListMessages(ctx, first.ID, bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "for first only", list[0].Content)
}

func TestListMessagesRequiresMembership(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	eve := e.user(t, "eve")

	g, err := e.conversations.CreateGroup(ctx, alice.ID, "Team", nil)
	require.NoError(t, err)

	_, err = e.messages.ListMessages(ctx, g.ID, eve.ID, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
