package chatsync

import (
	"cmp"
	"slices"
	"time"
)

// mergeMessages returns the union of a and b keyed by message id, sorted by
// (CreatedAt, ID). A message read in either input stays read.
func mergeMessages(a, b []Message) []Message {
	byID := make(map[int64]int, len(a)+len(b))
	out := make([]Message, 0, len(a)+len(b))
	for _, src := range [][]Message{a, b} {
		for _, m := range src {
			if i, ok := byID[m.ID]; ok {
				m.IsRead = m.IsRead || out[i].IsRead
				out[i] = m
				continue
			}
			byID[m.ID] = len(out)
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, compareMessages)
	return out
}

func compareMessages(x, y Message) int {
	if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(x.ID, y.ID)
}

// mergeConversation folds an incoming snapshot into what we already hold.
func mergeConversation(cur, in Persisted) Persisted {
	out := in
	out.Messages = mergeMessages(cur.Messages, in.Messages)
	out.LatestMessageText = latestText(out)
	return out
}

func normalize(p Persisted) Persisted {
	p.Messages = mergeMessages(nil, p.Messages)
	p.LatestMessageText = latestText(p)
	return p
}

func withMessage(p Persisted, m Message) Persisted {
	p.Messages = mergeMessages(p.Messages, []Message{m})
	p.LatestMessageText = latestText(p)
	return p
}

func latestText(p Persisted) string {
	if n := len(p.Messages); n > 0 {
		return p.Messages[n-1].Text
	}
	return p.LatestMessageText
}

// markFrom marks every message from senderID read and reports how many changed.
func markFrom(p Persisted, senderID int64) (Persisted, int) {
	return markFromUpTo(p, senderID, time.Time{})
}

// markFromUpTo is markFrom limited to messages created at or before upTo.
// A zero upTo means no limit.
func markFromUpTo(p Persisted, senderID int64, upTo time.Time) (Persisted, int) {
	changed := 0
	msgs := slices.Clone(p.Messages)
	for i := range msgs {
		if !upTo.IsZero() && msgs[i].CreatedAt.After(upTo) {
			continue
		}
		if msgs[i].SenderID == senderID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			changed++
		}
	}
	p.Messages = msgs
	return p, changed
}
