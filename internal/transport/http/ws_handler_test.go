package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/messenger/internal/proto"
)

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readEvent reads frames until an event with the given name arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) proto.Outbound {
	t.Helper()
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == name {
			return out
		}
	}
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for error: %v", err)
		}
		if out.Type == proto.OutboundTypeError {
			return out.Error
		}
	}
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	in := proto.Inbound{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		in.Data = raw
	}
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketPushFlow(t *testing.T) {
	env := startTestServer(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx, alice.Token)
	send(t, ctx, connA, proto.InboundTypePing, nil)
	readEvent(t, ctx, connA, proto.EventPong)

	connB := env.dial(t, ctx, bob.Token)

	online := readEvent(t, ctx, connA, proto.EventAddOnlineUser)
	var presence proto.PresenceEvent
	if err := json.Unmarshal(online.Data, &presence); err != nil || presence.UserID != bob.User.ID {
		t.Fatalf("unexpected presence event: %s %v", online.Data, err)
	}

	// Alice sends over REST; bob is pushed the message with the sender attached.
	var sent proto.SendMessageResponse
	if status := env.do(t, http.MethodPost, "/api/messages", alice.Token, proto.SendMessageRequest{RecipientID: bob.User.ID, Text: "hi"}, &sent); status != http.StatusOK {
		t.Fatalf("send: %d", status)
	}

	pushed := readEvent(t, ctx, connB, proto.EventNewMessage)
	var delivery proto.NewMessageEvent
	if err := json.Unmarshal(pushed.Data, &delivery); err != nil {
		t.Fatalf("decode new-message: %v", err)
	}
	if delivery.Message.ID != sent.Message.ID || delivery.RecipientID != bob.User.ID || delivery.Sender == nil || delivery.Sender.ID != alice.User.ID || !delivery.Sender.Online {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}

	// Bob reads it and tells alice.
	send(t, ctx, connB, proto.InboundTypeChatOpened, proto.ChatOpenedEvent{ConversationID: sent.Message.ConversationID, SenderID: alice.User.ID})
	opened := readEvent(t, ctx, connA, proto.EventChatOpened)
	var ack proto.ChatOpenedEvent
	if err := json.Unmarshal(opened.Data, &ack); err != nil || ack.ConversationID != sent.Message.ConversationID || ack.SenderID != alice.User.ID {
		t.Fatalf("unexpected chat-opened: %s %v", opened.Data, err)
	}

	// Bob leaves; alice sees him go offline.
	connB.Close(websocket.StatusNormalClosure, "bye")
	offline := readEvent(t, ctx, connA, proto.EventRemoveOfflineUser)
	if err := json.Unmarshal(offline.Data, &presence); err != nil || presence.UserID != bob.User.ID {
		t.Fatalf("unexpected offline event: %s %v", offline.Data, err)
	}
}

func TestWebSocketRejectsBadInbound(t *testing.T) {
	env := startTestServer(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")

	var sent proto.SendMessageResponse
	if status := env.do(t, http.MethodPost, "/api/messages", alice.Token, proto.SendMessageRequest{RecipientID: bob.User.ID, Text: "hi"}, &sent); status != http.StatusOK {
		t.Fatalf("send: %d", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := env.dial(t, ctx, carol.Token)

	send(t, ctx, conn, "shout", nil)
	if e := readError(t, ctx, conn); e == nil || e.Code != proto.CodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", e)
	}

	send(t, ctx, conn, proto.InboundTypeChatOpened, map[string]any{})
	if e := readError(t, ctx, conn); e == nil || e.Code != proto.CodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", e)
	}

	send(t, ctx, conn, proto.InboundTypeChatOpened, proto.ChatOpenedEvent{ConversationID: sent.Message.ConversationID, SenderID: alice.User.ID})
	if e := readError(t, ctx, conn); e == nil || e.Code != proto.CodeForbidden {
		t.Fatalf("expected forbidden, got %+v", e)
	}
}
