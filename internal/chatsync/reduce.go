package chatsync

import (
	"slices"
	"time"
)

// Reduce applies ev to s and returns the next state and the effects to run.
// s itself is never modified.
func Reduce(s State, ev Event) (State, []Effect) {
	n := s.clone()
	var effects []Effect
	switch ev := ev.(type) {
	case PullCompleted:
		effects = n.pulled(ev)
	case MessageSent:
		effects = n.sent(ev)
	case MessageReceived:
		effects = n.received(ev)
	case PresenceChanged:
		n.PresenceSeq++
		n.presenceAt[ev.UserID] = n.PresenceSeq
		n.setPresence(ev.UserID, ev.Online)
	case SearchResults:
		n.searched(ev.Users)
	case SearchCleared:
		n.Entries = slices.DeleteFunc(n.Entries, func(e Entry) bool {
			_, ok := e.(Placeholder)
			return ok
		})
	case ConversationOpened:
		effects = n.opened(ev.PeerID)
	case ConversationClosed:
		n.cancelCheck()
		n.Active = 0
	case UnreadChecked:
		effects = n.checked(ev)
	case PeerOpened:
		effects = n.peerOpened(ev)
	default:
		return s, nil
	}
	return n, effects
}

func (n *State) pulled(ev PullCompleted) []Effect {
	for _, c := range ev.Conversations {
		if n.presenceAt[c.Other.ID] > ev.PresenceSeq {
			c.Other.Online = n.Presence[c.Other.ID]
		} else {
			n.Presence[c.Other.ID] = c.Other.Online
		}
		switch i := n.indexByID(c.ID); {
		case i >= 0:
			n.Entries[i] = mergeConversation(n.Entries[i].(Persisted), c)
		default:
			if j := n.placeholderFor(c.Other.ID); j >= 0 {
				n.Entries[j] = normalize(c)
			} else {
				n.Entries = append(n.Entries, normalize(c))
			}
		}
	}

	// Something we missed while away may be sitting in the open conversation.
	// A check still in flight cannot speak for it, so consume supersedes it.
	p, ok := n.ActiveConversation()
	if !ok || UnreadCount(p, n.Self.ID) == 0 {
		return nil
	}
	return n.consume(n.indexByID(p.ID))
}

func (n *State) sent(ev MessageSent) []Effect {
	m := ev.Message
	if i := n.indexByID(m.ConversationID); i >= 0 {
		n.Entries[i] = withMessage(n.Entries[i].(Persisted), m)
		return nil
	}
	other := ev.Recipient
	if online, ok := n.Presence[other.ID]; ok {
		other.Online = online
	}
	p := withMessage(Persisted{
		ID:      m.ConversationID,
		User1ID: n.Self.ID,
		User2ID: other.ID,
		Other:   other,
	}, m)
	if j := n.placeholderFor(other.ID); j >= 0 {
		p.Other = n.Entries[j].Peer()
		n.Entries[j] = p
		return nil
	}
	n.Entries = slices.Insert(n.Entries, 0, Entry(p))
	if other.Username == "" {
		// Sent by id alone; the pull fills in who it was.
		return []Effect{Refresh{}}
	}
	return nil
}

func (n *State) received(ev MessageReceived) []Effect {
	m := ev.Message
	i := n.indexByID(m.ConversationID)
	switch {
	case i >= 0:
		n.Entries[i] = withMessage(n.Entries[i].(Persisted), m)
	case n.placeholderFor(m.SenderID) >= 0:
		i = n.placeholderFor(m.SenderID)
		n.Entries[i] = withMessage(Persisted{
			ID:      m.ConversationID,
			User1ID: m.SenderID,
			User2ID: n.Self.ID,
			Other:   n.Entries[i].Peer(),
		}, m)
	case ev.Sender != nil:
		other := *ev.Sender
		n.Presence[other.ID] = other.Online
		n.Entries = slices.Insert(n.Entries, 0, Entry(withMessage(Persisted{
			ID:      m.ConversationID,
			User1ID: other.ID,
			User2ID: n.Self.ID,
			Other:   other,
		}, m)))
		i = 0
	default:
		// A conversation we never saw and cannot build locally.
		return []Effect{Refresh{}}
	}

	if m.SenderID == n.Self.ID {
		return nil
	}
	if n.Active == m.SenderID {
		return n.consume(i)
	}
	if UnreadCount(n.Entries[i], n.Self.ID) > 0 {
		n.Reads[m.ConversationID] = ReadDirty
	}
	return nil
}

func (n *State) setPresence(userID int64, online bool) {
	n.Presence[userID] = online
	for i, e := range n.Entries {
		if e.Peer().ID != userID {
			continue
		}
		switch e := e.(type) {
		case Placeholder:
			e.Other.Online = online
			n.Entries[i] = e
		case Persisted:
			e.Other.Online = online
			n.Entries[i] = e
		}
	}
}

func (n *State) searched(users []User) {
	for _, u := range users {
		if u.ID == n.Self.ID || n.indexByPeer(u.ID) >= 0 {
			continue
		}
		if online, ok := n.Presence[u.ID]; ok {
			u.Online = online
		}
		n.Entries = append(n.Entries, Placeholder{Other: u})
	}
}

func (n *State) opened(peerID int64) []Effect {
	if peerID == n.Active {
		return nil
	}
	n.cancelCheck()
	n.Active = peerID

	p, ok := n.ActiveConversation()
	if !ok {
		return nil
	}
	n.Gen++
	covers, _ := latestFrom(p, peerID)
	n.pending[p.ID] = readCheck{token: n.Gen, covers: covers}
	n.Reads[p.ID] = ReadCheckPending
	return []Effect{CheckUnread{ConversationID: p.ID, SenderID: peerID, Token: n.Gen}}
}

func (n *State) checked(ev UnreadChecked) []Effect {
	check, ok := n.pending[ev.ConversationID]
	if !ok || check.token != ev.Token {
		return nil
	}
	delete(n.pending, ev.ConversationID)

	p, ok := n.ActiveConversation()
	switch {
	case !ok || p.ID != ev.ConversationID:
		n.Reads[ev.ConversationID] = ReadUnknown
		return nil
	case ev.Err != nil:
		n.Reads[ev.ConversationID] = ReadUnknown
		return nil
	case !ev.HasUnread:
		i := n.indexByID(p.ID)
		if !check.covers.IsZero() {
			p, _ = markFromUpTo(p, n.Active, check.covers)
			n.Entries[i] = p
		}
		if UnreadCount(p, n.Self.ID) > 0 {
			// Arrived after the check was issued.
			return n.consume(i)
		}
		n.Reads[p.ID] = ReadClean
		return nil
	}

	if _, ok := latestFrom(p, n.Active); !ok {
		// The server knows messages we have not merged yet; the pull that
		// follows consumes them.
		n.Reads[p.ID] = ReadDirty
		return []Effect{Refresh{}}
	}
	return n.consume(n.indexByID(p.ID))
}

func (n *State) peerOpened(ev PeerOpened) []Effect {
	if i := n.indexByID(ev.ConversationID); i >= 0 {
		n.Entries[i], _ = markFrom(n.Entries[i].(Persisted), n.Self.ID)
	}
	return []Effect{Refresh{}}
}

// consume marks the peer's messages in entry i read and tells the server
// and the peer. Any check still in flight for it becomes moot.
func (n *State) consume(i int) []Effect {
	p := n.Entries[i].(Persisted)
	peer := otherParticipant(p, n.Self.ID)
	upTo, _ := latestFrom(p, peer)
	n.Entries[i], _ = markFrom(p, peer)
	delete(n.pending, p.ID)
	n.Reads[p.ID] = ReadClean
	return []Effect{
		MarkRead{ConversationID: p.ID, SenderID: peer, UpTo: timePtr(upTo)},
		EmitChatOpened{ConversationID: p.ID, SenderID: peer},
	}
}

func (n *State) cancelCheck() {
	for id := range n.pending {
		delete(n.pending, id)
		if n.Reads[id] == ReadCheckPending {
			n.Reads[id] = ReadUnknown
		}
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
