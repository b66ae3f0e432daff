package templates

import (
	"fmt"
	"io"
	"text/tabwriter"

	"makoto/cmd/makoto/cli"
	"makoto/internal/api"

	"github.com/spf13/cobra"
)

var category string

var Cmd = &cobra.Command{
	Use:   "templates [id]",
	Short: "List task templates or print one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		client := cli.NewClient(cfg)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			t, err := client.TaskTemplate(cmd.Context(), args[0])
			if api.IsNotFound(err) {
				return fmt.Errorf("template %s not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (%s)\n%s\n\n%s\n", t.Name, t.Category, t.Description, t.Prompt)
			return nil
		}

		var list []api.TaskTemplate
		if category != "" {
			list, err = client.TaskTemplatesByCategory(cmd.Context(), category)
		} else {
			list, err = client.TaskTemplates(cmd.Context())
		}
		if err != nil {
			return err
		}
		printTemplates(out, list)
		return nil
	},
}

func init() {
	Cmd.Flags().StringVarP(&category, "category", "c", "", "only list templates in this category")
}

func printTemplates(w io.Writer, list []api.TaskTemplate) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tNAME")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Category, t.Name)
	}
	tw.Flush()
}
