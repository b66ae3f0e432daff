package history

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"makoto/cmd/makoto/cli"
	"makoto/internal/history"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	limit  int
	remove bool
)

var Cmd = &cobra.Command{
	Use:   "history [chat-id]",
	Short: "Show local chat transcripts",
	Long:  "Without a chat id, list the locally recorded chats. With one, print its transcript.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := cli.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			chats, total, err := store.ListChats(ctx, 0, limit)
			if err != nil {
				return err
			}
			printChats(out, chats, total)
			return nil
		}

		id := args[0]
		if remove {
			if err := store.DeleteChat(ctx, id); errors.Is(err, history.ErrNotFound) {
				return fmt.Errorf("no local history for %s", id)
			} else if err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %s\n", id)
			return nil
		}

		chat, err := store.GetChat(ctx, id)
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no local history for %s", id)
		}
		if err != nil {
			return err
		}
		msgs, err := store.Messages(ctx, id, limit)
		if err != nil {
			return err
		}
		printTranscript(out, chat, msgs)
		return nil
	},
}

func init() {
	Cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum chats or messages to show")
	Cmd.Flags().BoolVar(&remove, "rm", false, "remove the local transcript of the chat")
}

func printChats(w io.Writer, chats []history.Chat, total int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Title, c.MessageCount, humanize.Time(c.UpdatedAt))
	}
	tw.Flush()
	if total > len(chats) {
		fmt.Fprintf(w, "showing %d of %d chats\n", len(chats), total)
	}
}

func printTranscript(w io.Writer, chat history.Chat, msgs []history.Message) {
	fmt.Fprintf(w, "%s  %s\n\n", chat.ID, chat.Title)
	for _, m := range msgs {
		fmt.Fprintf(w, "%s (%s):\n%s\n", m.Role, humanize.Time(m.CreatedAt), m.Content)
		for _, img := range m.Images {
			fmt.Fprintf(w, "  image: %s\n", img.URL)
		}
		for _, s := range m.Sources {
			fmt.Fprintf(w, "  source: %s\n", s.URL)
		}
		fmt.Fprintln(w)
	}
}
