package transaction

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/obsforge/stackupgrade/pkg/services"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	mgr, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	return mgr
}

func TestCommitKeepsChanges(t *testing.T) {
	mgr := newTestManager(t)
	workDir := t.TempDir()
	path := filepath.Join(workDir, "node-agent.yaml")

	tx, err := mgr.Begin("configure node-agent")
	require.NoError(t, err)

	require.NoError(t, tx.CreateFile(path, []byte("port: 9100"), 0o600))
	require.NoError(t, tx.Commit())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "port: 9100", string(content))

	// The transaction log survives the commit for inspection.
	logData, err := os.ReadFile(filepath.Join(tx.dir, "tx.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "commit tx="+tx.ID)
}

func TestRollbackUndoesFileOps(t *testing.T) {
	mgr := newTestManager(t)
	workDir := t.TempDir()

	existing := filepath.Join(workDir, "existing.conf")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o600))

	fresh := filepath.Join(workDir, "fresh.conf")
	doomed := filepath.Join(workDir, "doomed.conf")
	require.NoError(t, os.WriteFile(doomed, []byte("keep me"), 0o600))

	tx, err := mgr.Begin("multi-file change")
	require.NoError(t, err)

	require.NoError(t, tx.ReplaceFile(existing, []byte("clobbered"), 0o600))
	require.NoError(t, tx.CreateFile(fresh, []byte("new file"), 0o600))
	require.NoError(t, tx.DeleteFile(doomed))

	require.NoError(t, tx.Rollback("install exploded"))

	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content), "replaced file restored")

	_, err = os.Stat(fresh)
	assert.True(t, os.IsNotExist(err), "created file removed")

	content, err = os.ReadFile(doomed)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content), "deleted file restored")
}

func TestRollbackModifyFile(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "limits.conf")
	require.NoError(t, os.WriteFile(path, []byte("max=10"), 0o600))

	tx, err := mgr.Begin("bump limits")
	require.NoError(t, err)

	require.NoError(t, tx.ModifyFile(path, func([]byte) ([]byte, error) {
		return []byte("max=100"), nil
	}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "max=100", string(content))

	require.NoError(t, tx.Rollback("no"))

	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "max=10", string(content))
}

func TestRollbackRunsHooksInReverseOrder(t *testing.T) {
	mgr := newTestManager(t)

	tx, err := mgr.Begin("hooks")
	require.NoError(t, err)

	var order []string

	require.NoError(t, tx.RegisterRollback("first", func() error {
		order = append(order, "first")
		return nil
	}))
	require.NoError(t, tx.RegisterRollback("second", func() error {
		order = append(order, "second")
		return nil
	}))

	require.NoError(t, tx.Rollback("test"))
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRollbackCountsFailures(t *testing.T) {
	mgr := newTestManager(t)

	tx, err := mgr.Begin("partial rollback")
	require.NoError(t, err)

	require.NoError(t, tx.RegisterRollback("bad", func() error {
		return assert.AnError
	}))
	require.NoError(t, tx.RegisterRollback("good", func() error {
		return nil
	}))

	err = tx.Rollback("test")
	assert.ErrorIs(t, err, ErrRollbackIncomplete)
}

func TestFinishedTxRejectsFurtherUse(t *testing.T) {
	mgr := newTestManager(t)

	tx, err := mgr.Begin("done")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), ErrTxFinished)
	assert.ErrorIs(t, tx.Rollback("late"), ErrTxFinished)
	assert.ErrorIs(t, tx.CreateFile("/tmp/x", nil, 0o600), ErrTxFinished)
	assert.ErrorIs(t, tx.RegisterRollback("late", func() error { return nil }), ErrTxFinished)
}

func TestSingleActiveTransaction(t *testing.T) {
	mgr := newTestManager(t)

	tx, err := mgr.Begin("first")
	require.NoError(t, err)

	_, err = mgr.Begin("second")
	assert.ErrorIs(t, err, ErrTxActive)

	require.NoError(t, tx.Commit())

	tx2, err := mgr.Begin("second")
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
}

func TestWithTransaction(t *testing.T) {
	mgr := newTestManager(t)
	workDir := t.TempDir()

	t.Run("success commits", func(t *testing.T) {
		path := filepath.Join(workDir, "ok.conf")

		err := mgr.WithTransaction("ok", func(tx *Tx) error {
			return tx.CreateFile(path, []byte("x"), 0o600)
		})
		require.NoError(t, err)

		assert.FileExists(t, path)
	})

	t.Run("error rolls back", func(t *testing.T) {
		path := filepath.Join(workDir, "bad.conf")

		err := mgr.WithTransaction("bad", func(tx *Tx) error {
			if err := tx.CreateFile(path, []byte("x"), 0o600); err != nil {
				return err
			}

			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestServiceOpsUndoInverted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := services.NewMockManager(ctrl)

	mgr, err := NewManager(t.TempDir(), mockSvc)
	require.NoError(t, err)

	tx, err := mgr.Begin("service dance")
	require.NoError(t, err)

	gomock.InOrder(
		mockSvc.EXPECT().Stop(gomock.Any(), "node-agent.service").Return(nil),
		mockSvc.EXPECT().Enable(gomock.Any(), "process-agent.service").Return(nil),
		// Undo runs in reverse: disable first, then start.
		mockSvc.EXPECT().Disable(gomock.Any(), "process-agent.service").Return(nil),
		mockSvc.EXPECT().Start(gomock.Any(), "node-agent.service").Return(nil),
	)

	require.NoError(t, tx.ServiceStop("node-agent.service"))
	require.NoError(t, tx.ServiceEnable("process-agent.service"))

	require.NoError(t, tx.Rollback("test"))
}

func TestServiceOpWithoutManager(t *testing.T) {
	mgr := newTestManager(t)

	tx, err := mgr.Begin("no svc")
	require.NoError(t, err)

	assert.Error(t, tx.ServiceStart("node-agent.service"))

	require.NoError(t, tx.Rollback("test"))
}

func TestSweepExpired(t *testing.T) {
	mgr := newTestManager(t)

	tx, err := mgr.Begin("old")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// Age the finished transaction dir past the retention cutoff.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(tx.dir, old, old))

	active, err := mgr.Begin("active")
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(active.dir, old, old))

	removed, err := mgr.SweepExpired(24 * time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)

	_, err = os.Stat(tx.dir)
	assert.True(t, os.IsNotExist(err), "expired dir removed")
	assert.DirExists(t, active.dir, "active transaction spared")

	require.NoError(t, active.Commit())
}
