package chats

import (
	"fmt"
	"io"
	"text/tabwriter"

	"makoto/cmd/makoto/cli"
	"makoto/internal/api"

	"github.com/spf13/cobra"
)

var (
	offset int
	limit  int
	asJSON bool
)

var Cmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage chats stored on the backend",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		resp, err := cli.NewClient(cfg).ListChats(cmd.Context(), offset, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return cli.PrintJSON(cmd.OutOrStdout(), resp)
		}
		printChats(cmd.OutOrStdout(), resp)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Show a chat with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		detail, err := cli.NewClient(cfg).GetChat(cmd.Context(), args[0])
		if api.IsNotFound(err) {
			return fmt.Errorf("chat %s not found", args[0])
		}
		if err != nil {
			return err
		}
		if asJSON {
			return cli.PrintJSON(cmd.OutOrStdout(), detail)
		}
		printDetail(cmd.OutOrStdout(), detail)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <chat-id>...",
	Short: "Delete chats",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		client := cli.NewClient(cfg)
		for _, id := range args {
			if err := client.DeleteChat(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of chats to skip")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of chats to list")
	Cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	Cmd.AddCommand(listCmd, showCmd, deleteCmd)
}

func printChats(w io.Writer, resp *api.GetChatsResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, c := range resp.Chats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.RoomID, c.Title, c.MessageCount, cli.Ago(c.UpdatedAt))
	}
	tw.Flush()
	fmt.Fprintf(w, "page %d of %d (%d chats)\n", resp.Page, max(resp.TotalPages, 1), resp.Total)
}

func printDetail(w io.Writer, d *api.ChatDetail) {
	fmt.Fprintf(w, "%s  %s\n\n", d.RoomID, d.Title)
	for _, m := range d.Messages {
		fmt.Fprintf(w, "%s (%s):\n%s\n", m.Role, cli.Ago(m.Timestamp), m.Content)
		for _, img := range m.Images {
			fmt.Fprintf(w, "  image: %s\n", img.URL)
		}
		for _, s := range m.CrawlSources {
			fmt.Fprintf(w, "  source: %s\n", s.URL)
		}
		fmt.Fprintln(w)
	}
}
