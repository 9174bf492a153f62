package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/operations"
	"github.com/kebairia/dirbak/internal/output"
)

var (
	restoreDest     string
	restoreNoVerify bool
	restoreForce    bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore [archive]",
	Short: "Extract a recorded archive",
	Long: `Extract an archive into --dest, recreating its top-level directory.
Without an archive name the recorded archives are listed newest first and
one is picked interactively. The archive is verified against its recorded
MD5 digest first unless --no-verify is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		out := cmd.OutOrStdout()
		p := newPrompter(cmd)

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			records, err := a.mgr.Records()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No backups found.")
				return errNothingToDo
			}
			records = index.SortedByDate(records, true)
			output.RenderChoices(out, records)
			choice, err := p.ask("Select a backup (number or name, c to cancel): ")
			if err != nil {
				return err
			}
			rec, err := operations.SelectRecord(records, choice)
			if errors.Is(err, operations.ErrSelectionCancelled) {
				fmt.Fprintln(out, "Restore cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			name = rec.ArchiveName
		}

		req := operations.RestoreRequest{
			ArchiveName: name,
			Destination: restoreDest,
			Verify:      !restoreNoVerify,
		}
		n, err := a.mgr.Restore(req)
		if errors.Is(err, operations.ErrIntegrityMismatch) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			proceed := restoreForce || (p.interactive && p.confirm("Restore anyway?"))
			if !proceed {
				return err
			}
			req.Verify = false
			n, err = a.mgr.Restore(req)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Restored %d files from %s into %s\n", n, name, restoreDest)
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreDest, "dest", "d", ".", "directory to restore into")
	restoreCmd.Flags().BoolVar(&restoreNoVerify, "no-verify", false, "skip the integrity check")
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "restore even when the integrity check fails")
}
