/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsforge/stackupgrade/pkg/backup"
	"github.com/obsforge/stackupgrade/pkg/config"
	"github.com/obsforge/stackupgrade/pkg/history"
	"github.com/obsforge/stackupgrade/pkg/manifest"
	"github.com/obsforge/stackupgrade/pkg/services"
	"github.com/obsforge/stackupgrade/pkg/state"
	"github.com/obsforge/stackupgrade/pkg/version"
)

var (
	configFile string

	cfg *config.UpgradeConfig
)

var rootCmd = &cobra.Command{
	Use:   "stackupgrade",
	Short: "Monitoring exporter fleet upgrade orchestrator",
	Long: `Stackupgrade manages the lifecycle of monitoring-agent modules
installed on this host: detection, version resolution, backup,
install/upgrade, health checking and automatic rollback. Every run is
recorded in a durable, crash-recoverable session state file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		cfg = &config.UpgradeConfig{}
		if err := config.LoadAndValidate(configFile, cfg); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		"/etc/stackupgrade/config.json", "Path to orchestrator configuration")

	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(txcleanCmd)
}

// buildDeps wires the shared collaborators for commands that need them.
type deps struct {
	store     *state.Store
	backups   *backup.Manager
	svc       services.Manager
	manifests map[string]*manifest.Manifest
	archive   *history.DB
}

func buildDeps(openHistory bool) (*deps, error) {
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	backups, err := backup.NewManager(cfg.BackupDir)
	if err != nil {
		return nil, err
	}

	d := &deps{
		store:   store,
		backups: backups,
		svc:     services.NewSystemdManager(),
	}

	if cfg.ManifestDir != "" {
		manifests, err := manifest.LoadDir(cfg.ManifestDir)
		if err != nil {
			return nil, fmt.Errorf("error loading manifests: %w", err)
		}

		d.manifests = manifests
	}

	if openHistory && cfg.HistoryDB != "" {
		archive, err := history.New(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}

		d.archive = archive
	}

	return d, nil
}

func (d *deps) close() {
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			log.Printf("Failed to close history db: %v", err)
		}
	}
}

func (d *deps) newResolver() *version.Resolver {
	cacheTTL := time.Duration(cfg.ReleaseAPI.CacheTTL)
	cacheMaxAge := time.Duration(cfg.ReleaseAPI.CacheMaxAge)

	cache := version.NewCache(cfg.ReleaseAPI.CacheFile, cacheTTL, cacheMaxAge)

	var client version.ReleaseClient
	if cfg.ReleaseAPI.BaseURL != "" {
		client = version.NewHTTPReleaseClient(cfg.ReleaseAPI.BaseURL, cfg.ReleaseAPI.RequestsPerMinute)
	}

	return version.NewResolver(cfg, client, cache, manifest.Versions(d.manifests))
}
