package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/upgrade"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <component>",
	Short: "Restore a component from its most recent backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(false)
		if err != nil {
			return err
		}
		defer d.close()

		pipeline := upgrade.NewPipeline(cfg, d.store, d.newResolver(), d.backups, d.svc, d.manifests)

		if err := pipeline.RollbackComponent(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Printf("Component %s rolled back.\n", args[0])

		return nil
	},
}
