package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/messenger/internal/client"
	applog "github.com/vovakirdan/messenger/internal/log"
	"github.com/vovakirdan/messenger/internal/proto"
)

// smoke registers two throwaway users against a running server, sends a
// first-contact message and waits for it on the recipient's push channel.
func main() {
	if err := run(); err != nil {
		log.Printf("smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server URL")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := uuid.NewString()[:8]
	sender := client.NewAPI(*addr)
	if _, err := sender.Register(ctx, "smoke-a-"+suffix, "smoke-password"); err != nil {
		return fmt.Errorf("register sender: %w", err)
	}
	recipient := client.NewAPI(*addr)
	me, err := recipient.Register(ctx, "smoke-b-"+suffix, "smoke-password")
	if err != nil {
		return fmt.Errorf("register recipient: %w", err)
	}

	received := make(chan proto.NewMessageEvent, 1)
	connected := make(chan struct{}, 1)
	push := client.NewPush(*addr, recipient.Token, client.PushConfig{MaxAttempts: 1}, client.PushHandler{
		OnConnect: func() {
			select {
			case connected <- struct{}{}:
			default:
			}
		},
		OnEvent: func(out proto.Outbound) {
			fmt.Printf("Received outbound: type=%s event=%s\n", out.Type, out.Event)
			if out.Event != proto.EventNewMessage {
				return
			}
			var evt proto.NewMessageEvent
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				received <- evt
			}
		},
	}, applog.New("warn"))

	pushErr := make(chan error, 1)
	go func() { pushErr <- push.Run(ctx) }()

	select {
	case <-connected:
	case err := <-pushErr:
		return fmt.Errorf("push: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("waiting for push connection: %w", ctx.Err())
	}

	resp, err := sender.Send(ctx, proto.SendMessageRequest{RecipientID: me.User.ID, Text: *text})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Printf("Sent message %d in conversation %d\n", resp.Message.ID, resp.Message.ConversationID)

	select {
	case evt := <-received:
		if evt.Message.ID != resp.Message.ID {
			return fmt.Errorf("got message %d, want %d", evt.Message.ID, resp.Message.ID)
		}
		if evt.Sender == nil {
			return fmt.Errorf("first-contact push is missing the sender")
		}
		fmt.Printf("new-message: conversation=%d sender=%s text=%q\n", evt.Message.ConversationID, evt.Sender.Username, evt.Message.Text)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for new-message: %w", ctx.Err())
	}
}
