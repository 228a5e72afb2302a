package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointDescription string

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage full-state checkpoints of the current session",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Snapshot the current session state under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		d, err := buildDeps(false)
		if err != nil {
			return err
		}
		defer d.close()

		if err := d.store.CreateCheckpoint(args[0], checkpointDescription); err != nil {
			return err
		}

		fmt.Printf("Checkpoint %q created.\n", args[0])

		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the current session state with a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		d, err := buildDeps(false)
		if err != nil {
			return err
		}
		defer d.close()

		session, err := d.store.RestoreCheckpoint(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Checkpoint %q restored (session %s, status %s).\n",
			args[0], session.UpgradeID, session.Status)

		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints of the current session",
	RunE: func(_ *cobra.Command, _ []string) error {
		d, err := buildDeps(false)
		if err != nil {
			return err
		}
		defer d.close()

		checkpoints, err := d.store.ListCheckpoints()
		if err != nil {
			return err
		}

		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints.")
			return nil
		}

		for _, cp := range checkpoints {
			fmt.Printf("%s\t%s\t%s\n", cp.Name, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Description)
		}

		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().StringVarP(&checkpointDescription, "description", "d", "",
		"Free-form description stored with the checkpoint")

	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
}
