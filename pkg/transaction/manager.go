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

// Package transaction pkg/transaction/manager.go - generic
// begin/commit/rollback envelope for sequences of file and service
// mutations, usable independently of the upgrade state machine.
package transaction

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsforge/stackupgrade/pkg/services"
)

// Manager creates transactions under a base directory. At most one
// transaction may be active per process at a time.
type Manager struct {
	mu      sync.Mutex
	baseDir string
	svc     services.Manager
	active  *Tx
}

// NewManager creates a transaction manager. svc may be nil when no
// service operations will be used.
func NewManager(baseDir string, svc services.Manager) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create transaction dir: %w", err)
	}

	return &Manager{baseDir: baseDir, svc: svc}, nil
}

// Tx is one transaction: an operation log plus a backup directory.
type Tx struct {
	ID        string
	Name      string
	StartedAt time.Time

	mgr        *Manager
	dir        string
	backupDir  string
	logFile    *os.File
	fileOps    []FileOp
	serviceOps []ServiceOp
	hooks      []rollbackHook
	finished   bool
}

// Begin starts a transaction named name.
func (m *Manager) Begin(name string) (*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, fmt.Errorf("%w: %s", ErrTxActive, m.active.ID)
	}

	id := uuid.New().String()
	dir := filepath.Join(m.baseDir, id)
	backupDir := filepath.Join(dir, "backups")

	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create transaction workspace: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, "tx.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction log: %w", err)
	}

	tx := &Tx{
		ID:        id,
		Name:      name,
		StartedAt: time.Now().UTC(),
		mgr:       m,
		dir:       dir,
		backupDir: backupDir,
		logFile:   logFile,
	}

	tx.logf("begin tx=%s name=%s", id, name)

	m.active = tx

	return tx, nil
}

// WithTransaction runs op inside begin/commit, rolling back automatically
// if op returns an error.
func (m *Manager) WithTransaction(name string, op func(*Tx) error) error {
	tx, err := m.Begin(name)
	if err != nil {
		return err
	}

	if err := op(tx); err != nil {
		if rbErr := tx.Rollback(err.Error()); rbErr != nil {
			log.Printf("Rollback of transaction %s: %v", tx.ID, rbErr)
			return fmt.Errorf("%w (rollback: %w)", err, rbErr)
		}

		return err
	}

	return tx.Commit()
}

// RegisterRollback adds a custom undo hook. Hooks run before file and
// service undo, in reverse registration order.
func (t *Tx) RegisterRollback(name string, fn func() error) error {
	if t.finished {
		return ErrTxFinished
	}

	t.hooks = append(t.hooks, rollbackHook{name: name, fn: fn})
	t.logf("register_rollback name=%s", name)

	return nil
}

// Commit finalizes the transaction. Backups are retained for forensic
// purposes; cleanup is the retention sweep's job.
func (t *Tx) Commit() error {
	if t.finished {
		return ErrTxFinished
	}

	t.finish()

	t.logf("commit tx=%s duration=%s file_ops=%d service_ops=%d hooks=%d",
		t.ID, time.Since(t.StartedAt), len(t.fileOps), len(t.serviceOps), len(t.hooks))

	return t.logFile.Close()
}

// Rollback replays all recorded operations in reverse chronological
// order: hooks first, then file operations, then service operations.
// Each undo step's failure is counted but does not stop the remaining
// steps; the aggregate count is reported at the end.
func (t *Tx) Rollback(reason string) error {
	if t.finished {
		return ErrTxFinished
	}

	t.finish()
	t.logf("rollback tx=%s reason=%s", t.ID, reason)

	failures := 0

	for i := len(t.hooks) - 1; i >= 0; i-- {
		hook := t.hooks[i]

		if err := hook.fn(); err != nil {
			failures++

			t.logf("undo hook %s failed: %v", hook.name, err)
			log.Printf("Transaction %s: undo hook %s failed: %v", t.ID, hook.name, err)
		}
	}

	for i := len(t.fileOps) - 1; i >= 0; i-- {
		if err := t.undoFileOp(&t.fileOps[i]); err != nil {
			failures++

			t.logf("undo %s %s failed: %v", t.fileOps[i].Type, t.fileOps[i].Path, err)
			log.Printf("Transaction %s: undo %s %s failed: %v",
				t.ID, t.fileOps[i].Type, t.fileOps[i].Path, err)
		}
	}

	for i := len(t.serviceOps) - 1; i >= 0; i-- {
		if err := t.undoServiceOp(&t.serviceOps[i]); err != nil {
			failures++

			t.logf("undo %s %s failed: %v", t.serviceOps[i].Type, t.serviceOps[i].Unit, err)
			log.Printf("Transaction %s: undo %s %s failed: %v",
				t.ID, t.serviceOps[i].Type, t.serviceOps[i].Unit, err)
		}
	}

	t.logf("rollback finished failures=%d", failures)

	if err := t.logFile.Close(); err != nil {
		log.Printf("Transaction %s: close log: %v", t.ID, err)
	}

	if failures > 0 {
		return fmt.Errorf("%w: %d undo steps failed", ErrRollbackIncomplete, failures)
	}

	return nil
}

func (t *Tx) finish() {
	t.finished = true

	t.mgr.mu.Lock()
	if t.mgr.active == t {
		t.mgr.active = nil
	}
	t.mgr.mu.Unlock()
}

func (t *Tx) logf(format string, args ...interface{}) {
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))

	if _, err := t.logFile.WriteString(line); err != nil {
		log.Printf("Transaction %s: write log: %v", t.ID, err)
	}
}

// SweepExpired removes transaction directories older than retention.
// Committed backups are kept until then for post-mortem inspection.
func (m *Manager) SweepExpired(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction dir: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		m.mu.Lock()
		activeID := ""
		if m.active != nil {
			activeID = m.active.ID
		}
		m.mu.Unlock()

		if entry.Name() == activeID {
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.baseDir, entry.Name())); err != nil {
			log.Printf("Failed to sweep transaction %s: %v", entry.Name(), err)
			continue
		}

		removed++
	}

	return removed, nil
}

// context-free service verbs use a bounded background context.
func (t *Tx) serviceCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
