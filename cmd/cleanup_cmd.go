package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/operations"
	"github.com/kebairia/dirbak/internal/output"
)

var (
	cleanupBySize  bool
	cleanupOrphans bool
	cleanupDryRun  bool
	cleanupYes     bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete archives beyond the retention limits",
	Long: `Delete archives older than retention.days_to_keep and, per source
directory, all but the newest retention.max_backups_per_directory.
--by-size also enforces retention.max_total_size_gb and --orphans removes
archive files that have no record.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		out := cmd.OutOrStdout()

		req := operations.CleanupRequest{BySize: cleanupBySize, Orphans: cleanupOrphans, DryRun: true}
		plan, err := a.mgr.Cleanup(req)
		if err != nil {
			return err
		}
		if plan.Empty() {
			fmt.Fprintln(out, "Nothing to clean up.")
			return errNothingToDo
		}
		for _, name := range plan.Selected {
			fmt.Fprintf(out, "  delete %s\n", name)
		}
		for _, name := range plan.Orphans {
			fmt.Fprintf(out, "  delete orphan %s\n", name)
		}
		if cleanupDryRun {
			return nil
		}
		p := newPrompter(cmd)
		if !cleanupYes && p.interactive && !p.confirm(fmt.Sprintf("Delete %d archives?", len(plan.Selected)+len(plan.Orphans))) {
			fmt.Fprintln(out, "Cleanup cancelled.")
			return nil
		}

		req.DryRun = false
		res, err := a.mgr.Cleanup(req)
		fmt.Fprintf(out, "Removed %d archives (%s freed), %d orphans, %d failures\n",
			len(res.Report.Removed), output.FormatSize(res.Report.FreedBytes), len(res.Orphans), len(res.Report.Failed))
		return err
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupBySize, "by-size", false, "also enforce retention.max_total_size_gb")
	cleanupCmd.Flags().BoolVar(&cleanupOrphans, "orphans", false, "also delete archive files without a record")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "only show what would be deleted")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "do not ask for confirmation")
}
