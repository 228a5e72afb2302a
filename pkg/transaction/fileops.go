// Package transaction pkg/transaction/fileops.go - logged file mutations.
// Every mutation backs up the pre-mutation content (or records that the
// file did not previously exist) before writing.

package transaction

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CreateFile writes a new file. If the path already exists its content is
// backed up and undo restores it instead of deleting.
func (t *Tx) CreateFile(path string, content []byte, mode os.FileMode) error {
	return t.writeFile(OpCreateFile, path, content, mode)
}

// ReplaceFile overwrites path with content.
func (t *Tx) ReplaceFile(path string, content []byte, mode os.FileMode) error {
	return t.writeFile(OpReplaceFile, path, content, mode)
}

// ModifyFile applies mutate to the file's current content and writes the
// result back.
func (t *Tx) ModifyFile(path string, mutate func([]byte) ([]byte, error)) error {
	if t.finished {
		return ErrTxFinished
	}

	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	next, err := mutate(current)
	if err != nil {
		return fmt.Errorf("modify callback for %s: %w", path, err)
	}

	return t.writeFile(OpModifyFile, path, next, info.Mode())
}

// DeleteFile backs up and removes path.
func (t *Tx) DeleteFile(path string) error {
	if t.finished {
		return ErrTxFinished
	}

	op := FileOp{Type: OpDeleteFile, Path: path, Timestamp: time.Now().UTC()}

	backupName, existed, err := t.backupCurrent(path, len(t.fileOps))
	if err != nil {
		return err
	}

	if !existed {
		// Deleting a file that is not there is a no-op; log nothing to
		// undo.
		t.logf("delete_file path=%s (did not exist)", path)
		return nil
	}

	op.BackupName = backupName
	op.Existed = true

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	t.fileOps = append(t.fileOps, op)
	t.logf("delete_file path=%s backup=%s", path, backupName)

	return nil
}

func (t *Tx) writeFile(opType OpType, path string, content []byte, mode os.FileMode) error {
	if t.finished {
		return ErrTxFinished
	}

	op := FileOp{Type: opType, Path: path, Timestamp: time.Now().UTC()}

	backupName, existed, err := t.backupCurrent(path, len(t.fileOps))
	if err != nil {
		return err
	}

	op.BackupName = backupName
	op.Existed = existed

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}

	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	t.fileOps = append(t.fileOps, op)
	t.logf("%s path=%s existed=%v backup=%s", opType, path, existed, backupName)

	return nil
}

// backupCurrent copies the file's current content into the transaction's
// backup dir. existed=false records "file did not previously exist".
func (t *Tx) backupCurrent(path string, index int) (backupName string, existed bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	backupName = fmt.Sprintf("%03d-%s", index, filepath.Base(path))

	if err := copyFile(path, filepath.Join(t.backupDir, backupName), info.Mode()); err != nil {
		return "", false, fmt.Errorf("failed to back up %s: %w", path, err)
	}

	return backupName, true, nil
}

func (t *Tx) undoFileOp(op *FileOp) error {
	if !op.Existed {
		// Created fresh; undo is deletion.
		if err := os.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			return err
		}

		return nil
	}

	info, err := os.Stat(filepath.Join(t.backupDir, op.BackupName))
	if err != nil {
		return fmt.Errorf("backup %s missing: %w", op.BackupName, err)
	}

	return copyFile(filepath.Join(t.backupDir, op.BackupName), op.Path, info.Mode())
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only file

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck,gosec // best effort before bailing
		return err
	}

	return out.Close()
}
