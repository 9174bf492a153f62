package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/output"
)

var listStats bool

var listCmd = &cobra.Command{
	Use:   "list [directory]",
	Short: "Show recorded archives grouped by directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		out := cmd.OutOrStdout()

		records, err := a.mgr.Records()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			records = index.ByDirectory(records, args[0])
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No backups found.")
			return errNothingToDo
		}
		output.RenderRecords(out, records, time.Now())
		if listStats {
			output.RenderSummary(out, index.Summarize(records))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listStats, "stats", "s", true, "print totals below the listing")
}
