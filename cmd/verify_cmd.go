package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/operations"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Re-hash an archive and compare it with its record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.mgr.VerifyArchive(args[0])
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("%w: %s: recorded %s, actual %s",
				operations.ErrIntegrityMismatch, args[0], res.Record.Digest, res.Actual)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%s)\n", args[0], res.Actual)
		return nil
	},
}
