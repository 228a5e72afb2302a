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

// Package upgrade pkg/upgrade/pipeline.go - the component upgrade
// pipeline: detect, resolve, back up, install, health-check, and
// commit-or-rollback, updating the state machine throughout.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/obsforge/stackupgrade/pkg/backup"
	"github.com/obsforge/stackupgrade/pkg/config"
	"github.com/obsforge/stackupgrade/pkg/manifest"
	"github.com/obsforge/stackupgrade/pkg/resilience"
	"github.com/obsforge/stackupgrade/pkg/services"
	"github.com/obsforge/stackupgrade/pkg/state"
	"github.com/obsforge/stackupgrade/pkg/version"
)

const (
	msgRolledBack     = "upgrade failed, rolled back"
	msgRollbackFailed = "upgrade failed, rollback also failed"
	msgNoBackup       = "upgrade failed, no backup available"

	httpProbeTimeout = 10 * time.Second
)

// Pipeline orchestrates component upgrades, one component at a time.
type Pipeline struct {
	cfg        *config.UpgradeConfig
	store      *state.Store
	resolver   *version.Resolver
	backups    *backup.Manager
	svc        services.Manager
	breakers   *resilience.BreakerRegistry
	manifests  map[string]*manifest.Manifest
	httpClient *http.Client
}

// NewPipeline wires a pipeline together. manifests may be nil when no
// manifest directory is configured.
func NewPipeline(cfg *config.UpgradeConfig, store *state.Store, resolver *version.Resolver,
	backups *backup.Manager, svc services.Manager, manifests map[string]*manifest.Manifest) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		resolver:   resolver,
		backups:    backups,
		svc:        svc,
		breakers:   resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig()),
		manifests:  manifests,
		httpClient: &http.Client{Timeout: httpProbeTimeout},
	}
}

// Run upgrades the named components (all configured components when names
// is empty) inside one session. Components are processed sequentially in
// dependency order; a component failure does not stop the run, but lock
// timeouts and state corruption abort it.
func (p *Pipeline) Run(ctx context.Context, names []string, mode string, force, resume bool) error {
	session, err := p.prepareSession(mode, resume)
	if err != nil {
		return err
	}

	order, err := p.componentOrder(names)
	if err != nil {
		finishErr := fmt.Errorf("cannot order components: %w", err)
		if _, failErr := p.store.FailUpgrade(finishErr.Error()); failErr != nil {
			log.Printf("Failed to mark session failed: %v", failErr)
		}

		return finishErr
	}

	failed := 0

	for _, name := range order {
		if resume {
			if rec, ok := session.Components[name]; ok &&
				(rec.Status == state.ComponentCompleted || rec.Status == state.ComponentSkipped) {
				log.Printf("Resume: %s already %s, skipping", name, rec.Status)
				continue
			}
		}

		if err := p.store.SetPhase(name); err != nil {
			return p.abort(err)
		}

		if err := p.store.CreateCheckpoint("pre-"+name, "before upgrading "+name); err != nil {
			log.Printf("Checkpoint before %s failed: %v", name, err)
		}

		if err := p.UpgradeComponent(ctx, name, force); err != nil {
			if fatal(err) {
				return p.abort(err)
			}

			failed++

			log.Printf("Component %s failed: %v", name, err)
		}
	}

	if failed > 0 {
		msg := fmt.Sprintf("%d component(s) failed", failed)

		if _, err := p.store.FailUpgrade(msg); err != nil {
			return p.abort(err)
		}

		return errors.New(msg)
	}

	if _, err := p.store.CompleteUpgrade(); err != nil {
		return p.abort(err)
	}

	return nil
}

func (p *Pipeline) prepareSession(mode string, resume bool) (*state.Session, error) {
	session, err := p.store.Read()
	if err != nil {
		return nil, err
	}

	if !resume {
		if session.Status == state.SessionInProgress {
			return nil, fmt.Errorf("%w: session %s", ErrResumeRequired, session.UpgradeID)
		}

		return p.store.BeginUpgrade(mode)
	}

	if !session.Resumable() {
		return nil, fmt.Errorf("%w: nothing to resume", state.ErrNoSession)
	}

	if stuck := session.InProgressComponents(); len(stuck) > 1 {
		log.Printf("WARNING: %d components found in_progress (%v); previous run crashed mid-upgrade", len(stuck), stuck)
	}

	// Reconcile: in_progress records left by a crash go back to pending
	// so they are re-attempted.
	return p.store.AtomicUpdate(func(s *state.Session) error {
		s.Status = state.SessionInProgress
		s.CompletedAt = nil

		for _, rec := range s.Components {
			if rec.Status == state.ComponentInProgress {
				rec.Status = state.ComponentPending
			}
		}

		return nil
	})
}

func (p *Pipeline) componentOrder(names []string) ([]string, error) {
	var order []string

	if len(p.manifests) > 0 {
		sorted, err := manifest.Order(p.manifests)
		if err != nil {
			return nil, err
		}

		for _, name := range sorted {
			if p.cfg.Component(name) != nil {
				order = append(order, name)
			}
		}

		// Configured components without a manifest run last, in config
		// order.
		for i := range p.cfg.Components {
			if _, ok := p.manifests[p.cfg.Components[i].Name]; !ok {
				order = append(order, p.cfg.Components[i].Name)
			}
		}
	} else {
		for i := range p.cfg.Components {
			order = append(order, p.cfg.Components[i].Name)
		}
	}

	if len(names) == 0 {
		return order, nil
	}

	requested := make(map[string]struct{}, len(names))
	for _, name := range names {
		if p.cfg.Component(name) == nil {
			return nil, fmt.Errorf("%w: %s", version.ErrUnknownComponent, name)
		}

		requested[name] = struct{}{}
	}

	var filtered []string

	for _, name := range order {
		if _, ok := requested[name]; ok {
			filtered = append(filtered, name)
		}
	}

	return filtered, nil
}

// UpgradeComponent runs the full pipeline for one component.
func (p *Pipeline) UpgradeComponent(ctx context.Context, name string, force bool) error {
	comp := p.cfg.Component(name)
	if comp == nil {
		return fmt.Errorf("%w: %s", version.ErrUnknownComponent, name)
	}

	current, err := DetectVersion(ctx, comp.BinaryPath)
	if err != nil {
		log.Printf("Version detection for %s: %v", name, err)
		current = ""
	}

	// The binary probe can miss an install whose --version is broken;
	// the manifest's detection rules catch that case so the operator
	// knows a reinstall is overwriting something.
	if current == "" {
		if m, ok := p.manifests[name]; ok && manifest.Installed(ctx, m, p.svc) {
			log.Printf("WARNING: detection rules report %s installed but its version probe returned nothing; treating as fresh install", name)
		}
	}

	target, err := p.resolver.Resolve(ctx, name)
	if err != nil {
		if _, failErr := p.store.FailComponent(name, err.Error()); failErr != nil {
			return failErr
		}

		return err
	}

	// Two-stage upgrades funnel through the intermediate version first;
	// a later run re-detects the higher current version and proceeds to
	// the real target.
	if comp.IntermediateVersion != "" && current != "" &&
		version.Compare(current, comp.IntermediateVersion) < 0 {
		log.Printf("Two-stage upgrade for %s: targeting intermediate %s before %s",
			name, comp.IntermediateVersion, target)
		target = comp.IntermediateVersion
	}

	if !force && current != "" && version.Compare(current, target) >= 0 {
		reason := fmt.Sprintf("already at %s (target %s)", current, target)
		log.Printf("Skipping %s: %s", name, reason)

		_, err := p.store.SkipComponent(name, reason)

		return err
	}

	session, err := p.store.BeginComponent(name, current, target)
	if err != nil {
		return err
	}

	if err := p.checkPrerequisites(ctx, comp, session); err != nil {
		if _, failErr := p.store.FailComponent(name, err.Error()); failErr != nil {
			return failErr
		}

		return err
	}

	backupPath, err := p.createBackup(ctx, comp, current)
	if err != nil {
		if _, failErr := p.store.FailComponent(name, err.Error()); failErr != nil {
			return failErr
		}

		return err
	}

	if backupPath != "" {
		if err := p.store.SetBackup(name, backupPath); err != nil {
			return err
		}
	}

	installErr := p.breakers.Execute("install:"+name, func() error {
		return p.runInstall(ctx, name, comp.InstallAction, target, backupPath)
	})
	if installErr != nil {
		return p.failWithRollback(name, backupPath, installErr)
	}

	if err := p.runHealthCheck(ctx, comp); err != nil {
		return p.failWithRollback(name, backupPath, err)
	}

	if comp.MetricsEndpoint != "" {
		if err := p.verifyMetrics(ctx, comp.MetricsEndpoint); err != nil {
			log.Printf("Metrics verification for %s failed (non-fatal): %v", name, err)
		}
	}

	checksum, err := fileChecksum(comp.BinaryPath)
	if err != nil {
		log.Printf("Checksum of %s failed: %v", comp.BinaryPath, err)
	}

	if _, err := p.store.CompleteComponent(name, checksum, backupPath); err != nil {
		return err
	}

	log.Printf("Component %s upgraded %s -> %s", name, current, target)

	return nil
}

// createBackup collects the component's binary, service unit and config
// paths. Nothing eligible is not an error, but rollback will be
// unavailable for this attempt.
func (p *Pipeline) createBackup(ctx context.Context, comp *config.ComponentConfig, fromVersion string) (string, error) {
	sources := []string{comp.BinaryPath}

	if comp.Service != "" && p.svc != nil {
		unitPath, err := p.svc.UnitFilePath(ctx, comp.Service)
		if err != nil {
			log.Printf("Unit file for %s not found, excluding from backup: %v", comp.Service, err)
		} else {
			sources = append(sources, unitPath)
		}
	}

	sources = append(sources, comp.ConfigPaths...)

	dir, err := p.backups.Create(comp.Name, fromVersion, sources)
	if err != nil {
		if errors.Is(err, backup.ErrEmptyBackup) {
			log.Printf("WARNING: nothing to back up for %s; rollback will not be available", comp.Name)
			return "", nil
		}

		return "", err
	}

	return dir, nil
}

// failWithRollback restores the backup if one exists and records the
// outcome so operators can distinguish "safely reverted" from "needs
// manual intervention".
func (p *Pipeline) failWithRollback(name, backupPath string, cause error) error {
	if backupPath == "" {
		if _, err := p.store.FailComponent(name, msgNoBackup+": "+cause.Error()); err != nil {
			return err
		}

		return cause
	}

	if restoreErr := p.backups.Restore(backupPath); restoreErr != nil {
		msg := fmt.Sprintf("%s: %v (restore: %v)", msgRollbackFailed, cause, restoreErr)

		if _, err := p.store.FailComponent(name, msg); err != nil {
			return err
		}

		return fmt.Errorf("%w: %w", ErrRollbackFailed, cause)
	}

	if _, err := p.store.FailComponent(name, msgRolledBack+": "+cause.Error()); err != nil {
		return err
	}

	return cause
}

func (p *Pipeline) abort(err error) error {
	log.Printf("Aborting upgrade run: %v", err)

	if _, failErr := p.store.FailUpgrade(err.Error()); failErr != nil {
		log.Printf("Failed to mark session failed: %v", failErr)
	}

	return err
}

// fatal reports errors that make any further state mutation unsafe.
func fatal(err error) bool {
	return errors.Is(err, state.ErrLockTimeout) || errors.Is(err, state.ErrStateCorrupt)
}
