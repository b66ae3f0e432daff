package crawl

import (
	"errors"
	"fmt"
	"strings"

	"makoto/cmd/makoto/cli"
	"makoto/internal/api"

	"github.com/spf13/cobra"
)

var (
	keywords []string
	asJSON   bool
)

var Cmd = &cobra.Command{
	Use:   "crawl [query]",
	Short: "Search the web through the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" && len(keywords) == 0 {
			return errors.New("a query or at least one --keyword is required")
		}
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}

		resp, err := cli.NewClient(cfg).Crawl(cmd.Context(), &api.WebCrawlRequest{
			Keywords:      keywords,
			OriginalQuery: query,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return cli.PrintJSON(out, resp)
		}
		if !resp.Success {
			return fmt.Errorf("crawl failed: %s", resp.Error)
		}
		if resp.Summary != "" {
			fmt.Fprintf(out, "%s\n\n", resp.Summary)
		}
		for i, s := range resp.Sources {
			fmt.Fprintf(out, "[%d] %s\n    %s\n    %s\n", i+1, s.Title, s.URL, s.Snippet)
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "search keyword (repeatable)")
	Cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
}
