package cmd

import (
	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/api"
	"github.com/obsforge/stackupgrade/pkg/lifecycle"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only status API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := buildDeps(true)
		if err != nil {
			return err
		}
		defer d.close()

		server := api.NewAPIServer(d.store, d.archive, d.backups)

		return lifecycle.RunServer(cmd.Context(), &lifecycle.ServerOptions{
			ListenAddr:  cfg.ListenAddr,
			ServiceName: "stackupgrade-api",
			Handler:     server.Router(),
		})
	},
}
