package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/upgrade"
)

var (
	upgradeForce  bool
	upgradeResume bool
	upgradeMode   string
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [component...]",
	Short: "Upgrade configured components (all when none named)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(true)
		if err != nil {
			return err
		}
		defer d.close()

		pipeline := upgrade.NewPipeline(cfg, d.store, d.newResolver(), d.backups, d.svc, d.manifests)

		runErr := pipeline.Run(cmd.Context(), args, upgradeMode, upgradeForce, upgradeResume)

		// Archive the terminal session regardless of outcome.
		if d.archive != nil {
			if session, readErr := d.store.Read(); readErr == nil && session.UpgradeID != "" {
				if err := d.archive.RecordSession(session); err != nil {
					log.Printf("Failed to archive session %s: %v", session.UpgradeID, err)
				}
			}
		}

		return runErr
	},
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeForce, "force", false,
		"Reinstall even when the current version already satisfies the target")
	upgradeCmd.Flags().BoolVar(&upgradeResume, "resume", false,
		"Resume an interrupted session instead of starting a new one")
	upgradeCmd.Flags().StringVar(&upgradeMode, "mode", "standard",
		"Run mode label recorded in the session (standard, canary, maintenance)")
}
