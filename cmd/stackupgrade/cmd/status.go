package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/upgrade"
)

var statusDetect bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current upgrade session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := buildDeps(false)
		if err != nil {
			return err
		}
		defer d.close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if statusDetect {
			pipeline := upgrade.NewPipeline(cfg, d.store, d.newResolver(), d.backups, d.svc, d.manifests)

			return enc.Encode(pipeline.DetectComponents(cmd.Context()))
		}

		session, err := d.store.Read()
		if err != nil {
			return err
		}

		if session.UpgradeID == "" {
			fmt.Println("No upgrade session recorded.")
			return nil
		}

		return enc.Encode(session)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusDetect, "detect", false,
		"Probe installed components (version output and manifest detection rules) instead of showing the session")
}
