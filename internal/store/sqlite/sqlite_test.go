package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/pairchat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, username string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), username, username+"@example.com", "hash")
	require.NoError(t, err)
	return u
}

func TestCreateUser_RejectsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")

	_, err := s.CreateUser(ctx, "alice", "other@example.com", "hash")
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateUser(ctx, "alice2", "alice@example.com", "hash")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetUserSuspended(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	require.NoError(t, s.SetUserSuspended(ctx, alice.ID, true))

	got, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSuspended)

	assert.ErrorIs(t, s.SetUserSuspended(ctx, 999, true), store.ErrNotFound)
}

func TestGetOrCreateConversation_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("alice", "bob"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", first.ParticipantA)
	assert.Equal(t, "bob", first.ParticipantB)
	assert.NotEmpty(t, first.PublicID)

	second, created, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("alice", "bob"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PublicID, second.PublicID)

	// Swapped order is a different key.
	swapped, created, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("bob", "alice"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, swapped.ID)
}

func TestGetOrCreateConversation_ConcurrentFirstCallsCreateOneRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := store.NewConversationKey("alice", "bob")

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[int64]struct{})
		creates int
	)
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, created, err := s.GetOrCreateConversation(ctx, key)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			ids[conv.ID] = struct{}{}
			if created {
				creates++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, creates)

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE name = ?`, string(key)).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestListRecentMessages_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	conv, _, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("alice", "bob"))
	require.NoError(t, err)

	for i := range 5 {
		msg := &store.Message{
			ConversationID: conv.ID,
			From:           store.UserRef{ID: alice.ID, Username: alice.Username},
			To:             store.UserRef{ID: bob.ID, Username: bob.Username},
			Content:        fmt.Sprintf("msg-%d", i),
		}
		require.NoError(t, s.CreateMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
		assert.NotEmpty(t, msg.PublicID)
	}

	got, err := s.ListRecentMessages(ctx, conv.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "msg-4", got[0].Content)
	assert.Equal(t, "msg-3", got[1].Content)
	assert.Equal(t, "msg-2", got[2].Content)
	assert.Equal(t, "alice", got[0].From.Username)
	assert.Equal(t, "bob", got[0].To.Username)
	assert.Equal(t, conv.PublicID, got[0].ConversationPublicID)

	total, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestCreateMessage_RejectsOversizedContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	conv, _, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("alice", "bob"))
	require.NoError(t, err)

	long := make([]byte, store.MaxContentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	err = s.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		From:           store.UserRef{ID: alice.ID},
		To:             store.UserRef{ID: bob.ID},
		Content:        string(long),
	})
	assert.Error(t, err)
}

func TestMarkConversationRead_ScopedToConversationAndRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	ab, _, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("alice", "bob"))
	require.NoError(t, err)
	cb, _, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("carol", "bob"))
	require.NoError(t, err)

	send := func(convID int64, from, to *store.User) {
		require.NoError(t, s.CreateMessage(ctx, &store.Message{
			ConversationID: convID,
			From:           store.UserRef{ID: from.ID},
			To:             store.UserRef{ID: to.ID},
			Content:        "hi",
		}))
	}
	send(ab.ID, alice, bob)
	send(ab.ID, alice, bob)
	send(ab.ID, bob, alice)
	send(cb.ID, carol, bob)

	unread, err := s.CountUnread(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	changed, err := s.MarkConversationRead(ctx, ab.ID, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	unread, err = s.CountUnread(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread, "message in the other conversation stays unread")

	unread, err = s.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread, "messages to other users are untouched")

	changed, err = s.MarkConversationRead(ctx, ab.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestListConversationsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	seedUser(t, s, "carol")

	ab, _, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("alice", "bob"))
	require.NoError(t, err)
	ca, _, err := s.GetOrCreateConversation(ctx, store.NewConversationKey("carol", "alice"))
	require.NoError(t, err)
	_, _, err = s.GetOrCreateConversation(ctx, store.NewConversationKey("bob", "carol"))
	require.NoError(t, err)

	// Activity in alice__bob moves it to the front.
	require.NoError(t, s.CreateMessage(ctx, &store.Message{
		ConversationID: ab.ID,
		From:           store.UserRef{ID: bob.ID},
		To:             store.UserRef{ID: alice.ID},
		Content:        "ping",
	}))

	convs, err := s.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ab.ID, convs[0].ID)
	assert.Equal(t, ca.ID, convs[1].ID)
}

func TestNewWithSetup_PropagatesSetupError(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(*sql.DB) error { return errors.New("boom") })
	require.Error(t, err)
}
