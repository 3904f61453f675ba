package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind shows up within wait.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		case <-timer.C:
			return
		}
	}
}

// stubAuth maps conversation id to its two participants.
type stubAuth map[int64][2]int64

var errStubForbidden = errors.New("not a participant")

func (a stubAuth) Participants(_ context.Context, callerID, conversationID int64) (int64, error) {
	pair, ok := a[conversationID]
	if !ok {
		return 0, errors.New("conversation not found")
	}
	switch callerID {
	case pair[0]:
		return pair[1], nil
	case pair[1]:
		return pair[0], nil
	}
	return 0, errStubForbidden
}

func startHub(t *testing.T, auth Authorizer) (*Hub, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil, auth, nil)
	go hub.Run(ctx)
	return hub, ctx
}

func mustRegister(t *testing.T, ctx context.Context, hub *Hub, c *Client) {
	t.Helper()
	if err := hub.RegisterClient(ctx, c); err != nil {
		t.Fatalf("register %s: %v", c.ID, err)
	}
}
