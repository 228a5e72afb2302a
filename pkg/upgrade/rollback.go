package upgrade

import (
	"context"
	"fmt"
	"log"

	"github.com/obsforge/stackupgrade/pkg/state"
	"github.com/obsforge/stackupgrade/pkg/version"
)

// RollbackComponent manually restores the most recent backup for a
// component and restarts its service. The session record's backup path
// takes priority; otherwise the newest backup on disk is used.
func (p *Pipeline) RollbackComponent(ctx context.Context, name string) error {
	comp := p.cfg.Component(name)
	if comp == nil {
		return fmt.Errorf("%w: %s", version.ErrUnknownComponent, name)
	}

	session, err := p.store.Read()
	if err != nil {
		return err
	}

	backupPath := ""
	if rec, ok := session.Components[name]; ok && rec.RollbackAvailable {
		backupPath = rec.BackupPath
	}

	if backupPath == "" {
		backupPath, err = p.backups.LatestFor(name)
		if err != nil {
			return err
		}
	}

	if err := p.backups.Restore(backupPath); err != nil {
		return fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	if comp.Service != "" && p.svc != nil {
		if err := p.svc.Restart(ctx, comp.Service); err != nil {
			return fmt.Errorf("restored %s but restart of %s failed: %w", name, comp.Service, err)
		}
	}

	if err := p.recordManualRollback(name, backupPath); err != nil {
		log.Printf("Rollback of %s succeeded but state update failed: %v", name, err)
	}

	log.Printf("Component %s rolled back from %s", name, backupPath)

	return nil
}

func (p *Pipeline) recordManualRollback(name, backupPath string) error {
	_, err := p.store.AtomicUpdate(func(s *state.Session) error {
		rec, ok := s.Components[name]
		if !ok {
			return nil
		}

		rec.Error = "manually rolled back from " + backupPath
		rec.Status = state.ComponentFailed

		return nil
	})

	return err
}
