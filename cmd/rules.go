package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	"github.com/KaramelBytes/tabloom-cli/internal/utils"
)

var rulesJSON bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the registered cleaning rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		rules := newEngine(c).Rules()
		if rulesJSON {
			b, err := utils.PrettyJSON(rules)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}
		active := c.CleanRules
		if len(active) == 0 {
			active = cleaning.DefaultPipeline()
		}
		w := cmd.OutOrStdout()
		for _, r := range rules {
			mark := " "
			if slices.Contains(active, r.ID) {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %-18s %-12s %s\n", mark, r.ID, r.Category, r.Description)
		}
		fmt.Fprintln(w, "\n* = applied by default")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "print rules as JSON")
}
