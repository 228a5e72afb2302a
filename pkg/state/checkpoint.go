// Package state pkg/state/checkpoint.go - coarse, session-wide snapshots
// distinct from per-component backup/restore.

package state

import (
	"fmt"
	"os"
	"time"
)

// CreateCheckpoint copies the entire current state file to a named
// checkpoint file and appends an index entry to the session.
func (s *Store) CreateCheckpoint(name, description string) error {
	_, err := s.AtomicUpdate(func(session *Session) error {
		session.Checkpoints = append(session.Checkpoints, CheckpointEntry{
			Name:        name,
			Description: description,
			CreatedAt:   time.Now().UTC(),
		})

		return nil
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(s.statePath())
	if err != nil {
		return fmt.Errorf("failed to read state for checkpoint %s: %w", name, err)
	}

	if err := os.WriteFile(s.checkpointPath(name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", name, err)
	}

	return nil
}

// RestoreCheckpoint overwrites the live state file with the checkpoint's
// contents.
func (s *Store) RestoreCheckpoint(name string) (*Session, error) {
	if _, err := os.Stat(s.checkpointPath(name)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCheckpoint, name)
	}

	snapshot, err := readSessionFile(s.checkpointPath(name))
	if err != nil {
		return nil, err
	}

	return s.AtomicUpdate(func(session *Session) error {
		*session = *snapshot
		return nil
	})
}

// ListCheckpoints returns the checkpoint index of the current session.
func (s *Store) ListCheckpoints() ([]CheckpointEntry, error) {
	session, err := s.Read()
	if err != nil {
		return nil, err
	}

	return session.Checkpoints, nil
}
