package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/messenger/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, name string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, "hash")
	require.NoError(t, err)
	return u
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"alice", "alex", "alan", "bob", "charlie"} {
		mustUser(t, s, u)
	}

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "prefix", query: "al", expected: []string{"alan", "alex", "alice"}},
		{name: "infix", query: "li", expected: []string{"alice", "charlie"}},
		{name: "no match", query: "z", expected: []string{}},
		{name: "ascii case insensitive", query: "Bob", expected: []string{"bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchUsers(ctx, tt.query)
			require.NoError(t, err)
			names := make([]string, 0, len(results))
			for _, u := range results {
				names = append(names, u.Username)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestCreateUserConflict(t *testing.T) {
	s := newTestStore(t)
	mustUser(t, s, "alice")

	_, err := s.CreateUser(context.Background(), "alice", "other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))

	_, err = s.GetUserByUsername(context.Background(), "nobody")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCreateConversationIsOrderInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")
	b := mustUser(t, s, "bob")

	first, created, err := s.CreateConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreateConversation(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	found, err := s.FindConversation(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.True(t, found.HasParticipant(a.ID))
	assert.Equal(t, b.ID, found.Peer(a.ID))
}

func TestCreateConversationConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")
	b := mustUser(t, s, "bob")

	const workers = 16
	ids := make([]int64, workers)
	createdCount := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			conv, created, err := s.CreateConversation(ctx, x, y)
			if err != nil {
				t.Errorf("create conversation: %v", err)
				return
			}
			mu.Lock()
			ids[i] = conv.ID
			if created {
				createdCount++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, createdCount)

	convs, err := s.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestSelfConversationRejected(t *testing.T) {
	s := newTestStore(t)
	a := mustUser(t, s, "alice")
	_, _, err := s.CreateConversation(context.Background(), a.ID, a.ID)
	assert.Error(t, err)
}

func TestMessagesOrderingAndReadState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")
	b := mustUser(t, s, "bob")
	conv, _, err := s.CreateConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	save := func(sender int64, text string, at time.Time) *store.Message {
		m := &store.Message{ConversationID: conv.ID, SenderID: sender, Text: text, CreatedAt: at}
		require.NoError(t, s.SaveMessage(ctx, m))
		require.NotZero(t, m.ID)
		return m
	}
	save(a.ID, "hi", base)
	m2 := save(b.ID, "yo", base.Add(time.Second))
	// same timestamp as m2: ties break by id
	m3 := save(b.ID, "again", base.Add(time.Second))
	save(b.ID, "later", base.Add(2*time.Second+500*time.Millisecond))

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"hi", "yo", "again", "later"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text, msgs[3].Text})
	assert.Less(t, m2.ID, m3.ID)

	unread, err := s.HasUnread(ctx, conv.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, unread)

	upTo := base.Add(time.Second)
	n, err := s.MarkRead(ctx, conv.ID, b.ID, &upTo)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	unread, err = s.HasUnread(ctx, conv.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, unread, "message after upTo stays unread")

	n, err = s.MarkRead(ctx, conv.ID, b.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.MarkRead(ctx, conv.ID, b.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "second mark-read is a no-op")

	// alice's own message is untouched by marking bob's
	unread, err = s.HasUnread(ctx, conv.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, unread)
}

func TestListConversationsByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice")
	b := mustUser(t, s, "bob")
	c := mustUser(t, s, "carol")

	ab, _, err := s.CreateConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	ac, _, err := s.CreateConversation(ctx, a.ID, c.ID)
	require.NoError(t, err)

	later := time.Now().UTC().Add(time.Minute)
	require.NoError(t, s.SaveMessage(ctx, &store.Message{ConversationID: ab.ID, SenderID: b.ID, Text: "ping", CreatedAt: later}))

	convs, err := s.ListConversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ab.ID, convs[0].ID)
	assert.Equal(t, ac.ID, convs[1].ID)

	convs, err = s.ListConversations(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, ac.ID, convs[0].ID)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
