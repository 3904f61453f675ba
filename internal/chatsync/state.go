package chatsync

import (
	"slices"
	"time"
)

// State is the signed-in user's conversation list plus unread reconciliation
// bookkeeping. Treat it as immutable: Reduce returns a new value and shares
// unchanged parts with the old one.
type State struct {
	Self    User
	Entries []Entry
	// Presence holds the latest known online flag per user id.
	Presence map[int64]bool
	// PresenceSeq counts presence pushes. A pull issued at sequence N does
	// not override flags pushed after N.
	PresenceSeq uint64
	// Active is the peer id of the open conversation, 0 when none is open.
	Active int64
	Reads  map[int64]ReadState
	// Gen increments on every check request and tags CheckUnread tokens.
	Gen uint64

	pending    map[int64]readCheck
	presenceAt map[int64]uint64
}

// readCheck is an unread check in flight. covers is the newest peer
// message cached when it was issued; a clean answer says nothing about
// anything later.
type readCheck struct {
	token  uint64
	covers time.Time
}

// New returns an empty state for self.
func New(self User) State {
	return State{
		Self:       self,
		Presence:   map[int64]bool{},
		Reads:      map[int64]ReadState{},
		pending:    map[int64]readCheck{},
		presenceAt: map[int64]uint64{},
	}
}

// ReadState returns the reconciliation state of a conversation.
func (s State) ReadState(conversationID int64) ReadState {
	return s.Reads[conversationID]
}

// Conversation returns the persisted entry with the given id.
func (s State) Conversation(id int64) (Persisted, bool) {
	if i := s.indexByID(id); i >= 0 {
		return s.Entries[i].(Persisted), true
	}
	return Persisted{}, false
}

// EntryFor returns the entry whose peer is userID.
func (s State) EntryFor(userID int64) (Entry, bool) {
	if i := s.indexByPeer(userID); i >= 0 {
		return s.Entries[i], true
	}
	return nil, false
}

// ActiveConversation returns the open conversation if it is persisted.
func (s State) ActiveConversation() (Persisted, bool) {
	if s.Active == 0 {
		return Persisted{}, false
	}
	e, ok := s.EntryFor(s.Active)
	if !ok {
		return Persisted{}, false
	}
	p, ok := e.(Persisted)
	return p, ok
}

func (s State) indexByID(id int64) int {
	return slices.IndexFunc(s.Entries, func(e Entry) bool {
		p, ok := e.(Persisted)
		return ok && p.ID == id
	})
}

func (s State) indexByPeer(userID int64) int {
	return slices.IndexFunc(s.Entries, func(e Entry) bool {
		return e.Peer().ID == userID
	})
}

func (s State) placeholderFor(userID int64) int {
	return slices.IndexFunc(s.Entries, func(e Entry) bool {
		p, ok := e.(Placeholder)
		return ok && p.Other.ID == userID
	})
}

// clone copies the containers Reduce writes to.
func (s State) clone() State {
	n := s
	n.Entries = slices.Clone(s.Entries)
	n.Presence = cloneMap(s.Presence)
	n.Reads = cloneMap(s.Reads)
	n.pending = cloneMap(s.pending)
	n.presenceAt = cloneMap(s.presenceAt)
	return n
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UnreadCount counts messages in e that self has not read.
func UnreadCount(e Entry, self int64) int {
	p, ok := e.(Persisted)
	if !ok {
		return 0
	}
	n := 0
	for _, m := range p.Messages {
		if m.SenderID != self && !m.IsRead {
			n++
		}
	}
	return n
}

// LatestText is the preview line of an entry. Placeholders have none.
func LatestText(e Entry) string {
	p, ok := e.(Persisted)
	if !ok {
		return ""
	}
	return latestText(p)
}

// latestFrom returns the newest message timestamp sent by senderID.
func latestFrom(p Persisted, senderID int64) (time.Time, bool) {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].SenderID == senderID {
			return p.Messages[i].CreatedAt, true
		}
	}
	return time.Time{}, false
}

// otherParticipant returns the participant of p that is not self.
func otherParticipant(p Persisted, self int64) int64 {
	if p.User1ID == self {
		return p.User2ID
	}
	return p.User1ID
}
