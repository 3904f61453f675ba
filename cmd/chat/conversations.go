package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/messenger/internal/chatsync"
	"github.com/vovakirdan/messenger/internal/proto"
)

func init() {
	rootCmd.AddCommand(conversationsCmd, searchCmd, sendCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations with unread counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireAuth()
		if err != nil {
			return err
		}
		convs, err := e.api.Conversations(cmd.Context())
		if err != nil {
			return explain(err)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWITH\tSTATUS\tUNREAD\tLATEST")
		for _, c := range convs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", c.ID, c.OtherUser.Username, status(c.OtherUser.Online), c.UnreadCount, preview(c.LatestMessageText))
		}
		return w.Flush()
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find users by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireAuth()
		if err != nil {
			return err
		}
		users, err := e.api.SearchUsers(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		for _, u := range users {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", u.ID, u.Username, status(u.Online))
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <username> <text...>",
	Short: "Send a single message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := requireAuth()
		if err != nil {
			return err
		}
		peer, err := findUser(cmd, e, args[0])
		if err != nil {
			return err
		}
		resp, err := e.api.Send(cmd.Context(), proto.SendMessageRequest{
			RecipientID: peer.ID,
			Text:        strings.Join(args[1:], " "),
		})
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent #%d in conversation %d\n", resp.Message.ID, resp.Message.ConversationID)
		return nil
	},
}

// findUser resolves an exact username through search.
func findUser(cmd *cobra.Command, e *env, username string) (chatsync.User, error) {
	users, err := e.api.SearchUsers(cmd.Context(), username)
	if err != nil {
		return chatsync.User{}, explain(err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return chatsync.User{ID: u.ID, Username: u.Username, Online: u.Online}, nil
		}
	}
	return chatsync.User{}, fmt.Errorf("no user named %q", username)
}

func status(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func preview(text string) string {
	const limit = 40
	text = strings.ReplaceAll(text, "\n", " ")
	if r := []rune(text); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return text
}

func printList(w io.Writer, s chatsync.State) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range s.Entries {
		marker := " "
		if e.Peer().ID == s.Active {
			marker = ">"
		}
		unread := ""
		if n := chatsync.UnreadCount(e, s.Self.ID); n > 0 {
			unread = fmt.Sprintf("(%d)", n)
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", marker, e.Peer().Username, status(e.Peer().Online), unread, preview(chatsync.LatestText(e)))
	}
	tw.Flush()
}
