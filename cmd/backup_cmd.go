package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/archive"
	"github.com/kebairia/dirbak/internal/exclusion"
	"github.com/kebairia/dirbak/internal/operations"
	"github.com/kebairia/dirbak/internal/output"
)

var (
	backupName     string
	backupFormat   string
	backupLevel    int
	backupMax      bool
	backupExcludes string
	backupYes      bool
)

var backupCmd = &cobra.Command{
	Use:   "backup [source]",
	Short: "Archive a directory and record it in the index",
	Long: `Archive a directory (default: paths.source from the config) into the
configured destination. Built-in and configured exclusion patterns apply;
--exclude adds more for this run only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progress := output.NewProgress(cmd.ErrOrStderr(), "Archiving")
		a, err := newApp(operations.WithProgress(progress.Update))
		if err != nil {
			return err
		}
		defer a.close()

		req := operations.BackupRequest{
			Source:          a.cfg.Paths.Source,
			NameHint:        backupName,
			Level:           backupLevel,
			MaxCompression:  backupMax,
			ExtraExclusions: exclusion.ParseList(backupExcludes),
		}
		if len(args) == 1 {
			req.Source = args[0]
		}
		if backupFormat != "" {
			if req.Format, err = archive.ParseFormat(backupFormat); err != nil {
				return err
			}
		}

		p := newPrompter(cmd)
		if !backupYes && p.interactive {
			if !p.confirm(fmt.Sprintf("Back up %s to %s?", req.Source, a.cfg.Paths.Destination)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Backup cancelled.")
				return nil
			}
		}

		rec, err := a.mgr.CreateBackup(req)
		if err != nil {
			return err
		}
		progress.Finish()
		output.RenderRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupName, "name", "n", "", "archive name prefix instead of backup_<dir>")
	backupCmd.Flags().StringVarP(&backupFormat, "format", "f", "", "archive format: tar or zip (default from config)")
	backupCmd.Flags().IntVarP(&backupLevel, "level", "l", operations.LevelDefault, "compression level 0-9 (default from config)")
	backupCmd.Flags().BoolVar(&backupMax, "max", false, "use maximum compression (level 9)")
	backupCmd.Flags().StringVarP(&backupExcludes, "exclude", "e", "", "extra comma separated exclusion patterns")
	backupCmd.Flags().BoolVarP(&backupYes, "yes", "y", false, "do not ask for confirmation")
}
