package analyze

import (
	"errors"
	"fmt"
	"strings"

	"makoto/cmd/makoto/cli"
	"makoto/internal/agent"
	"makoto/internal/api"

	"github.com/spf13/cobra"
)

var asJSON bool

var Cmd = &cobra.Command{
	Use:   "analyze <prompt>",
	Short: "Ask the agent which modes a prompt needs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			return errors.New("prompt is required")
		}
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}

		resp, err := cli.NewClient(cfg).AnalyzePrompt(cmd.Context(), &api.AnalyzeRequest{Prompt: prompt})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return cli.PrintJSON(out, resp)
		}

		fmt.Fprintln(out, resp.Analysis)
		for _, m := range resp.Modes {
			mark := " "
			if m.Confidence > agent.ConfidenceThreshold && m.Type != api.AnalysisNone {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-6s %.2f  %s\n", mark, m.Type, m.Confidence, m.Reason)
			if len(m.SearchKeywords) > 0 {
				fmt.Fprintf(out, "         keywords: %s\n", strings.Join(m.SearchKeywords, ", "))
			}
		}
		modes, _ := agent.SelectModes(nil, resp)
		fmt.Fprintf(out, "enabled modes: %v\n", modes)
		return nil
	},
}

func init() {
	Cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
}
