package chatsync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = User{ID: 1, Username: "alice"}
	bob   = User{ID: 2, Username: "bob"}
	carol = User{ID: 3, Username: "carol"}
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func msg(id, conv, sender int64, text string, offset int) Message {
	return Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Text:           text,
		CreatedAt:      t0.Add(time.Duration(offset) * time.Second),
	}
}

func apply(t *testing.T, s State, events ...Event) (State, []Effect) {
	t.Helper()
	var all []Effect
	for _, ev := range events {
		var effects []Effect
		s, effects = Reduce(s, ev)
		all = append(all, effects...)
	}
	return s, all
}

func countChatOpened(effects []Effect) int {
	n := 0
	for _, e := range effects {
		if _, ok := e.(EmitChatOpened); ok {
			n++
		}
	}
	return n
}

func conv(id int64, other User, msgs ...Message) Persisted {
	return Persisted{ID: id, User1ID: alice.ID, User2ID: other.ID, Other: other, Messages: msgs}
}

func TestMessagesSortedRegardlessOfArrivalOrder(t *testing.T) {
	m1 := msg(10, 7, bob.ID, "one", 1)
	m2 := msg(11, 7, alice.ID, "two", 2)
	m3 := msg(12, 7, bob.ID, "three", 3)

	orders := map[string][]Event{
		"pull then push": {
			PullCompleted{Conversations: []Persisted{conv(7, bob, m1, m2)}},
			MessageReceived{Message: m3},
		},
		"push then stale pull": {
			PullCompleted{Conversations: []Persisted{conv(7, bob, m1)}},
			MessageReceived{Message: m3},
			MessageSent{Message: m2, Recipient: bob},
			PullCompleted{Conversations: []Persisted{conv(7, bob, m1, m2)}},
		},
		"reversed pull": {
			PullCompleted{Conversations: []Persisted{conv(7, bob, m3, m1, m2)}},
		},
		"duplicate pushes": {
			MessageReceived{Message: m3, Sender: &bob},
			MessageReceived{Message: m1},
			MessageReceived{Message: m3},
			MessageSent{Message: m2, Recipient: bob},
		},
	}
	for name, events := range orders {
		t.Run(name, func(t *testing.T) {
			s, _ := apply(t, New(alice), events...)
			p, ok := s.Conversation(7)
			require.True(t, ok)
			require.Len(t, p.Messages, 3)
			assert.Equal(t, []int64{10, 11, 12}, []int64{p.Messages[0].ID, p.Messages[1].ID, p.Messages[2].ID})
			assert.Equal(t, "three", p.LatestMessageText)
			assert.Len(t, s.Entries, 1)
		})
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s, _ := apply(t, New(alice), PullCompleted{Conversations: []Persisted{conv(7, bob, msg(10, 7, bob.ID, "hi", 1))}})
	before, _ := s.Conversation(7)

	next, _ := apply(t, s,
		MessageReceived{Message: msg(11, 7, bob.ID, "again", 2)},
		ConversationOpened{PeerID: bob.ID},
		PresenceChanged{UserID: bob.ID, Online: true},
	)

	after, _ := s.Conversation(7)
	assert.Equal(t, before, after)
	assert.Len(t, after.Messages, 1)
	assert.False(t, after.Messages[0].IsRead)
	assert.Zero(t, s.Active)

	got, _ := next.Conversation(7)
	assert.Len(t, got.Messages, 2)
	assert.True(t, got.Other.Online)
}

func TestIsReadNeverRegresses(t *testing.T) {
	read := msg(10, 7, bob.ID, "hi", 1)
	read.IsRead = true
	stale := msg(10, 7, bob.ID, "hi", 1)

	s, _ := apply(t, New(alice),
		PullCompleted{Conversations: []Persisted{conv(7, bob, read)}},
		PullCompleted{Conversations: []Persisted{conv(7, bob, stale)}},
		MessageReceived{Message: stale},
	)
	p, _ := s.Conversation(7)
	require.Len(t, p.Messages, 1)
	assert.True(t, p.Messages[0].IsRead)
	assert.Equal(t, 0, UnreadCount(p, alice.ID))
}

func TestOpenWithUnreadEmitsOneChatOpened(t *testing.T) {
	s, _ := apply(t, New(alice), PullCompleted{Conversations: []Persisted{conv(7, bob,
		msg(10, 7, bob.ID, "a", 1),
		msg(11, 7, bob.ID, "b", 2),
		msg(12, 7, alice.ID, "mine", 3),
		msg(13, 7, bob.ID, "c", 4),
	)}})
	p, _ := s.Conversation(7)
	require.Equal(t, 3, UnreadCount(p, alice.ID))

	s, effects := apply(t, s, ConversationOpened{PeerID: bob.ID})
	require.Len(t, effects, 1)
	check, ok := effects[0].(CheckUnread)
	require.True(t, ok)
	assert.Equal(t, CheckUnread{ConversationID: 7, SenderID: bob.ID, Token: check.Token}, check)
	assert.Equal(t, ReadCheckPending, s.ReadState(7))

	s, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: check.Token, HasUnread: true})
	assert.Equal(t, 1, countChatOpened(effects))
	require.Len(t, effects, 2)
	mark, ok := effects[0].(MarkRead)
	require.True(t, ok)
	require.NotNil(t, mark.UpTo)
	assert.Equal(t, t0.Add(4*time.Second), *mark.UpTo)
	assert.Equal(t, bob.ID, mark.SenderID)
	assert.Equal(t, ReadClean, s.ReadState(7))

	p, _ = s.Conversation(7)
	assert.Equal(t, 0, UnreadCount(p, alice.ID))

	// Reopening the already open conversation does nothing.
	_, effects = apply(t, s, ConversationOpened{PeerID: bob.ID})
	assert.Empty(t, effects)

	// A duplicate result is ignored.
	_, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: check.Token, HasUnread: true})
	assert.Empty(t, effects)
}

func TestUnreadCheckOutcomes(t *testing.T) {
	base, _ := apply(t, New(alice), PullCompleted{Conversations: []Persisted{
		conv(7, bob, msg(10, 7, bob.ID, "a", 1)),
		conv(8, carol, msg(20, 8, carol.ID, "c", 1)),
	}})

	t.Run("clean", func(t *testing.T) {
		s, effects := apply(t, base, ConversationOpened{PeerID: bob.ID})
		token := effects[0].(CheckUnread).Token
		s, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: token})
		assert.Empty(t, effects)
		assert.Equal(t, ReadClean, s.ReadState(7))
	})

	t.Run("error leaves state unknown", func(t *testing.T) {
		s, effects := apply(t, base, ConversationOpened{PeerID: bob.ID})
		token := effects[0].(CheckUnread).Token
		s, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: token, Err: errors.New("timeout")})
		assert.Empty(t, effects)
		assert.Equal(t, ReadUnknown, s.ReadState(7))
		p, _ := s.Conversation(7)
		assert.Equal(t, 1, UnreadCount(p, alice.ID))
	})

	t.Run("stale token after switching", func(t *testing.T) {
		s, effects := apply(t, base, ConversationOpened{PeerID: bob.ID})
		stale := effects[0].(CheckUnread).Token
		s, effects = apply(t, s, ConversationOpened{PeerID: carol.ID})
		require.Len(t, effects, 1)
		assert.Equal(t, ReadUnknown, s.ReadState(7))

		s, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: stale, HasUnread: true})
		assert.Empty(t, effects)
		p, _ := s.Conversation(7)
		assert.Equal(t, 1, UnreadCount(p, alice.ID))
	})

	t.Run("closed before answer", func(t *testing.T) {
		s, effects := apply(t, base, ConversationOpened{PeerID: bob.ID})
		token := effects[0].(CheckUnread).Token
		s, _ = apply(t, s, ConversationClosed{})
		_, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: token, HasUnread: true})
		assert.Empty(t, effects)
	})

	t.Run("server ahead of cache", func(t *testing.T) {
		s, _ := apply(t, New(alice), PullCompleted{Conversations: []Persisted{conv(9, carol, msg(30, 9, alice.ID, "mine", 1))}})
		s, effects := apply(t, s, ConversationOpened{PeerID: carol.ID})
		token := effects[0].(CheckUnread).Token
		s, effects = apply(t, s, UnreadChecked{ConversationID: 9, Token: token, HasUnread: true})
		assert.Equal(t, []Effect{Refresh{}}, effects)
		assert.Equal(t, ReadDirty, s.ReadState(9))

		s, effects = apply(t, s, PullCompleted{Conversations: []Persisted{conv(9, carol,
			msg(30, 9, alice.ID, "mine", 1),
			msg(31, 9, carol.ID, "missed", 2),
		)}})
		assert.Equal(t, 1, countChatOpened(effects))
		assert.Equal(t, ReadClean, s.ReadState(9))
	})
}

func TestMessageWhileOpenIsConsumed(t *testing.T) {
	s, effects := apply(t, New(alice),
		PullCompleted{Conversations: []Persisted{conv(7, bob, msg(10, 7, alice.ID, "hey", 1))}},
		ConversationOpened{PeerID: bob.ID},
	)
	token := effects[0].(CheckUnread).Token

	s, effects = apply(t, s, MessageReceived{Message: msg(11, 7, bob.ID, "yo", 2)})
	require.Len(t, effects, 2)
	assert.Equal(t, MarkRead{ConversationID: 7, SenderID: bob.ID, UpTo: timePtr(t0.Add(2 * time.Second))}, effects[0])
	assert.Equal(t, EmitChatOpened{ConversationID: 7, SenderID: bob.ID}, effects[1])
	assert.Equal(t, ReadClean, s.ReadState(7))
	p, _ := s.Conversation(7)
	assert.Equal(t, 0, UnreadCount(p, alice.ID))

	// The in-flight check was superseded and must not emit a second chat-opened.
	_, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: token, HasUnread: true})
	assert.Empty(t, effects)
}

func TestPullWhileCheckPendingConsumes(t *testing.T) {
	m1 := msg(10, 7, bob.ID, "old", 1)
	m1.IsRead = true
	m2 := msg(11, 7, bob.ID, "new", 2)

	s, effects := apply(t, New(alice),
		PullCompleted{Conversations: []Persisted{conv(7, bob, m1)}},
		ConversationOpened{PeerID: bob.ID},
	)
	token := effects[0].(CheckUnread).Token

	s, effects = apply(t, s, PullCompleted{Conversations: []Persisted{conv(7, bob, m1, m2)}})
	require.Len(t, effects, 2)
	assert.Equal(t, MarkRead{ConversationID: 7, SenderID: bob.ID, UpTo: timePtr(m2.CreatedAt)}, effects[0])
	assert.Equal(t, EmitChatOpened{ConversationID: 7, SenderID: bob.ID}, effects[1])
	assert.Equal(t, ReadClean, s.ReadState(7))

	// The answer to the older check is ignored.
	s, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: token})
	assert.Empty(t, effects)
	p, _ := s.Conversation(7)
	assert.Equal(t, 0, UnreadCount(p, alice.ID))
}

func TestCleanCheckOnlyCoversWhatItSaw(t *testing.T) {
	s, effects := apply(t, New(alice),
		PullCompleted{Conversations: []Persisted{conv(7, bob, msg(10, 7, bob.ID, "seen elsewhere", 1))}},
		ConversationOpened{PeerID: bob.ID},
	)
	check := effects[0].(CheckUnread)

	// Slipped in after the check left, without going through pull or push.
	late := msg(11, 7, bob.ID, "late", 2)
	i := s.indexByID(7)
	s.Entries[i] = withMessage(s.Entries[i].(Persisted), late)

	s, effects = apply(t, s, UnreadChecked{ConversationID: 7, Token: check.Token})
	require.Len(t, effects, 2)
	assert.Equal(t, MarkRead{ConversationID: 7, SenderID: bob.ID, UpTo: timePtr(late.CreatedAt)}, effects[0])
	assert.Equal(t, 1, countChatOpened(effects))
	assert.Equal(t, ReadClean, s.ReadState(7))
}

func TestMessageToClosedConversationIsDirty(t *testing.T) {
	s, effects := apply(t, New(alice),
		PullCompleted{Conversations: []Persisted{conv(7, bob), conv(8, carol)}},
		ConversationOpened{PeerID: carol.ID},
		MessageReceived{Message: msg(11, 7, bob.ID, "yo", 2)},
	)
	assert.Equal(t, 0, countChatOpened(effects))
	assert.Equal(t, ReadDirty, s.ReadState(7))
	p, _ := s.Conversation(7)
	assert.Equal(t, 1, UnreadCount(p, alice.ID))
}

func TestFirstContact(t *testing.T) {
	hi := msg(100, 42, alice.ID, "hi", 1)

	// Sender side: placeholder from search is promoted in place.
	a, _ := apply(t, New(alice),
		SearchResults{Users: []User{bob}},
		MessageSent{Message: hi, Recipient: bob},
	)
	require.Len(t, a.Entries, 1)
	p, ok := a.Entries[0].(Persisted)
	require.True(t, ok)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "hi", LatestText(p))
	assert.Equal(t, 0, UnreadCount(p, alice.ID))

	// Receiver side: the push carries the sender, so the entry is built locally.
	sender := alice
	sender.Online = true
	b, effects := apply(t, New(bob), MessageReceived{Message: hi, Sender: &sender})
	assert.Empty(t, effects)
	require.Len(t, b.Entries, 1)
	p = b.Entries[0].(Persisted)
	assert.Equal(t, int64(42), p.ID)
	assert.True(t, p.Other.Online)
	assert.Equal(t, 1, UnreadCount(p, bob.ID))

	b, effects = apply(t, b, ConversationOpened{PeerID: alice.ID})
	token := effects[0].(CheckUnread).Token
	b, effects = apply(t, b, UnreadChecked{ConversationID: 42, Token: token, HasUnread: true})
	assert.Equal(t, 1, countChatOpened(effects))
	assert.Equal(t, EmitChatOpened{ConversationID: 42, SenderID: alice.ID}, effects[1])
	assert.Equal(t, 0, UnreadCount(b.Entries[0], bob.ID))

	// Alice learns her message was read and refreshes; her badge was already zero.
	a, effects = apply(t, a, PeerOpened{ConversationID: 42, SenderID: alice.ID})
	assert.Equal(t, []Effect{Refresh{}}, effects)
	p, _ = a.Conversation(42)
	assert.True(t, p.Messages[0].IsRead)
	assert.Equal(t, 0, UnreadCount(p, alice.ID))
}

func TestSendToUncachedRecipientRefreshes(t *testing.T) {
	hi := msg(100, 42, alice.ID, "hi", 1)
	s, effects := apply(t, New(alice), MessageSent{Message: hi, Recipient: User{ID: bob.ID}})
	assert.Equal(t, []Effect{Refresh{}}, effects)
	require.Len(t, s.Entries, 1)

	s, _ = apply(t, s, PullCompleted{Conversations: []Persisted{conv(42, bob, hi)}})
	e, ok := s.EntryFor(bob.ID)
	require.True(t, ok)
	assert.Equal(t, "bob", e.Peer().Username)

	// A known recipient needs no pull.
	_, effects = apply(t, New(alice), MessageSent{Message: hi, Recipient: bob})
	assert.Empty(t, effects)
}

func TestUnknownConversationWithoutSenderRefreshes(t *testing.T) {
	s, effects := apply(t, New(alice), MessageReceived{Message: msg(1, 99, bob.ID, "?", 1)})
	assert.Equal(t, []Effect{Refresh{}}, effects)
	assert.Empty(t, s.Entries)
}

func TestPlaceholderSearchAndClear(t *testing.T) {
	s, _ := apply(t, New(bob),
		PullCompleted{Conversations: []Persisted{{ID: 7, User1ID: alice.ID, User2ID: bob.ID, Other: alice}}},
		SearchResults{Users: []User{alice, bob, carol, carol}},
	)
	require.Len(t, s.Entries, 2)
	ph, ok := s.Entries[1].(Placeholder)
	require.True(t, ok)
	assert.Equal(t, carol, ph.Other)
	assert.Empty(t, LatestText(ph))
	assert.Equal(t, 0, UnreadCount(ph, bob.ID))

	s, _ = apply(t, s, SearchCleared{})
	require.Len(t, s.Entries, 1)
	_, ok = s.Entries[0].(Persisted)
	assert.True(t, ok)

	// A later pull never brings the placeholder back.
	s, _ = apply(t, s, PullCompleted{Conversations: []Persisted{{ID: 7, User1ID: alice.ID, User2ID: bob.ID, Other: alice}}})
	_, found := s.EntryFor(carol.ID)
	assert.False(t, found)
}

func TestPullPromotesPlaceholder(t *testing.T) {
	s, _ := apply(t, New(alice),
		SearchResults{Users: []User{carol}},
		PullCompleted{Conversations: []Persisted{conv(8, carol, msg(20, 8, carol.ID, "c", 1))}},
	)
	require.Len(t, s.Entries, 1)
	p, ok := s.Entries[0].(Persisted)
	require.True(t, ok)
	assert.Equal(t, int64(8), p.ID)
}

func TestPresenceAnnotatesEntries(t *testing.T) {
	s, _ := apply(t, New(alice),
		PullCompleted{Conversations: []Persisted{conv(7, bob)}},
		SearchResults{Users: []User{carol}},
		PresenceChanged{UserID: bob.ID, Online: true},
		PresenceChanged{UserID: carol.ID, Online: true},
		PresenceChanged{UserID: carol.ID, Online: false},
	)
	e, _ := s.EntryFor(bob.ID)
	assert.True(t, e.Peer().Online)
	e, _ = s.EntryFor(carol.ID)
	assert.False(t, e.Peer().Online)
	assert.Equal(t, map[int64]bool{bob.ID: true, carol.ID: false}, s.Presence)
}

func TestOpenPlaceholderIssuesNoCheck(t *testing.T) {
	s, effects := apply(t, New(alice),
		SearchResults{Users: []User{carol}},
		ConversationOpened{PeerID: carol.ID},
	)
	assert.Empty(t, effects)
	assert.Equal(t, carol.ID, s.Active)
	_, ok := s.ActiveConversation()
	assert.False(t, ok)
}

func TestStalePullKeepsPushedPresence(t *testing.T) {
	s := New(alice)
	issued := s.PresenceSeq
	s, _ = apply(t, s,
		PullCompleted{Conversations: []Persisted{conv(7, bob)}},
		PresenceChanged{UserID: bob.ID, Online: true},
		// Issued before the push, answered after it.
		PullCompleted{Conversations: []Persisted{conv(7, bob)}, PresenceSeq: issued},
	)
	e, _ := s.EntryFor(bob.ID)
	assert.True(t, e.Peer().Online)

	offline := bob
	offline.Online = false
	s, _ = apply(t, s, PullCompleted{Conversations: []Persisted{conv(7, offline)}, PresenceSeq: s.PresenceSeq})
	e, _ = s.EntryFor(bob.ID)
	assert.False(t, e.Peer().Online)
}
