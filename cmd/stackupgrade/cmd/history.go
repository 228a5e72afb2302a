package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [upgrade-id]",
	Short: "List archived upgrade sessions, or show one in full",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if cfg.HistoryDB == "" {
			return errors.New("no history_db configured")
		}

		archive, err := history.New(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer archive.Close() //nolint:errcheck // read-only usage

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			summary, components, err := archive.GetSession(args[0])
			if err != nil {
				return err
			}

			return enc.Encode(struct {
				Session    *history.SessionSummary   `json:"session"`
				Components []history.ComponentResult `json:"components"`
			}{summary, components})
		}

		sessions, err := archive.ListSessions(historyLimit)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No upgrade sessions archived.")
			return nil
		}

		return enc.Encode(sessions)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum sessions to list")
}
