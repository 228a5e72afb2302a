package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/services"
	"github.com/obsforge/stackupgrade/pkg/transaction"
)

var txcleanRetention time.Duration

var txcleanCmd = &cobra.Command{
	Use:   "txclean",
	Short: "Remove transaction journals older than the retention period",
	RunE: func(_ *cobra.Command, _ []string) error {
		mgr, err := transaction.NewManager(cfg.TxDir, services.NewSystemdManager())
		if err != nil {
			return err
		}

		removed, err := mgr.SweepExpired(txcleanRetention)
		if err != nil {
			return err
		}

		fmt.Printf("Removed %d expired transaction dir(s).\n", removed)

		return nil
	},
}

func init() {
	txcleanCmd.Flags().DurationVar(&txcleanRetention, "retention", 7*24*time.Hour,
		"Age beyond which finished transaction journals are deleted")
}
