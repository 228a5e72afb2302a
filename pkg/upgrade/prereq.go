// Package upgrade pkg/upgrade/prereq.go - prerequisite validation. Every
// check here runs before any backup or mutation is attempted.

package upgrade

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/obsforge/stackupgrade/pkg/config"
	"github.com/obsforge/stackupgrade/pkg/state"
)

const defaultMinDiskMB = 100

// checkPrerequisites validates free disk space, the declared service and
// the dependency graph for one component.
func (p *Pipeline) checkPrerequisites(ctx context.Context, comp *config.ComponentConfig, session *state.Session) error {
	minMB := comp.MinDiskMB
	if minMB <= 0 {
		minMB = defaultMinDiskMB
	}

	if err := checkDiskSpace(filepath.Dir(comp.BinaryPath), minMB); err != nil {
		return fmt.Errorf("%w: %w", ErrPrerequisiteFailed, err)
	}

	if comp.Service != "" && p.svc != nil {
		if _, err := p.svc.UnitFilePath(ctx, comp.Service); err != nil {
			return fmt.Errorf("%w: %w: %s", ErrPrerequisiteFailed, errServiceMissing, comp.Service)
		}

		_, unitState, err := p.svc.IsActive(ctx, comp.Service)
		if err != nil {
			return fmt.Errorf("%w: cannot query state of %s: %w", ErrPrerequisiteFailed, comp.Service, err)
		}

		// Inactive is acceptable (fresh install, stopped for
		// maintenance); a failed unit needs operator attention before
		// anything is installed on top of it.
		if unitState == "failed" {
			return fmt.Errorf("%w: %w: %s", ErrPrerequisiteFailed, errServiceFailed, comp.Service)
		}
	}

	for _, dep := range comp.DependsOn {
		rec, ok := session.Components[dep]
		if !ok || (rec.Status != state.ComponentCompleted && rec.Status != state.ComponentSkipped) {
			return fmt.Errorf("%w: %w: %s", ErrPrerequisiteFailed, errDependencyNotDone, dep)
		}
	}

	return nil
}

func checkDiskSpace(dir string, minMB int64) error {
	var stat unix.Statfs_t

	if err := unix.Statfs(dir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem at %s: %w", dir, err)
	}

	freeMB := int64(stat.Bavail) * stat.Bsize / (1024 * 1024) //nolint:gosec // sizes fit

	if freeMB < minMB {
		return fmt.Errorf("%w: %dMB free at %s, need %dMB", errInsufficientDisk, freeMB, dir, minMB)
	}

	return nil
}
