package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/messenger/internal/chatsync"
	"github.com/vovakirdan/messenger/internal/client"
)

func init() {
	rootCmd.AddCommand(watchCmd, openCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the conversation list live",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireAuth()
		if err != nil {
			return err
		}
		session := client.NewSession(e.api, e.self(), e.log)
		session.Start(cmd.Context())
		defer session.Close()

		out := cmd.OutOrStdout()
		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case <-session.Updates():
				fmt.Fprintf(out, "--- %s ---\n", session.PushState())
				printList(out, session.State())
			}
		}
	},
}

var openCmd = &cobra.Command{
	Use:   "open <username>",
	Short: "Chat with a user; lines from stdin are sent, /quit leaves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireAuth()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		session := client.NewSession(e.api, e.self(), e.log)
		session.Start(ctx)
		defer session.Close()

		peer, err := findUser(cmd, e, args[0])
		if err != nil {
			return err
		}
		if _, err := session.Search(ctx, peer.Username); err != nil {
			return explain(err)
		}
		session.Open(peer.ID)
		defer session.CloseConversation()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "chatting with %s, /quit to leave\n", peer.Username)

		lines := make(chan string)
		go readLines(cmd.InOrStdin(), lines)

		printer := transcript{self: e.cfg.Auth.UserID, peer: peer, seen: map[int64]bool{}}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-session.Updates():
				printer.print(out, session.State())
			case line, ok := <-lines:
				if !ok || line == "/quit" {
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				if _, err := session.Send(ctx, peer.ID, line); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", explain(err))
				}
			}
		}
	},
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// transcript prints each message of the open conversation once.
type transcript struct {
	self    int64
	peer    chatsync.User
	seen    map[int64]bool
	printed bool
	online  bool
}

func (t *transcript) print(w io.Writer, s chatsync.State) {
	e, ok := s.EntryFor(t.peer.ID)
	if !ok {
		return
	}
	if online := e.Peer().Online; online != t.online || !t.printed {
		t.online = online
		fmt.Fprintf(w, "* %s is %s\n", t.peer.Username, status(online))
	}
	t.printed = true

	p, ok := e.(chatsync.Persisted)
	if !ok {
		return
	}
	for _, m := range p.Messages {
		if t.seen[m.ID] {
			continue
		}
		t.seen[m.ID] = true
		who := t.peer.Username
		if m.SenderID == t.self {
			who = "me"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Text)
	}
}
