// Package state pkg/state/store.go - durable, lock-protected session store.

package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateFileName  = "state.json"
	lockDirName    = "state.lock"
	historyDirName = "history"
	checkpointsDir = "checkpoints"
)

// Store owns the session state file. Every mutation goes through
// AtomicUpdate: lock, transform, write temp file, rename, unlock. A
// reader always sees either the old or the new document, never a partial
// write.
type Store struct {
	dir  string
	lock *DirLock
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"", historyDirName, checkpointsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state dir: %w", err)
		}
	}

	return &Store{
		dir:  dir,
		lock: NewDirLock(filepath.Join(dir, lockDirName)),
	}, nil
}

// WithLockTimeout overrides the bounded lock wait for every mutation.
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	s.lock.WithTimeout(d)
	return s
}

func (s *Store) statePath() string { return filepath.Join(s.dir, stateFileName) }

// HistoryDir is where terminal sessions are archived by upgrade_id.
func (s *Store) HistoryDir() string { return filepath.Join(s.dir, historyDirName) }

func (s *Store) checkpointPath(name string) string {
	return filepath.Join(s.dir, checkpointsDir, name+".json")
}

// Read returns the current session. A missing state file is a fresh idle
// session; an unreadable one is ErrStateCorrupt.
func (s *Store) Read() (*Session, error) {
	return readSessionFile(s.statePath())
}

func readSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newSession(), nil
		}

		return nil, fmt.Errorf("%w: %w", ErrStateCorrupt, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateCorrupt, err)
	}

	if session.Components == nil {
		session.Components = make(map[string]*ComponentRecord)
	}

	return &session, nil
}

// AtomicUpdate applies transform to the current session and durably
// replaces the state file. The transform receives structured state and
// must not signal success on partial work; once the temp file write
// begins the update always finishes before the lock is released.
func (s *Store) AtomicUpdate(transform func(*Session) error) (*Session, error) {
	if err := s.lock.Acquire(); err != nil {
		return nil, err
	}

	defer func() {
		if err := s.lock.Release(); err != nil {
			// The lock dir is already gone or unremovable; surfacing via
			// log is all we can do here.
			fmt.Fprintf(os.Stderr, "state: release lock: %v\n", err)
		}
	}()

	session, err := s.Read()
	if err != nil {
		return nil, err
	}

	if err := transform(session); err != nil {
		return nil, err
	}

	session.Version = schemaVersion
	session.UpdatedAt = time.Now().UTC()

	if err := s.writeSession(session); err != nil {
		return nil, err
	}

	return session, nil
}

// writeSession writes the document to a temp file in the state dir with
// owner-only permissions, then renames it over the state file.
func (s *Store) writeSession(session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, stateFileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close() //nolint:errcheck,gosec // best effort before bailing
		os.Remove(tmpName)

		return fmt.Errorf("failed to restrict temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // best effort before bailing
		os.Remove(tmpName)

		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.statePath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// archive copies the current state file into the history directory keyed
// by upgrade_id. Archived copies are never mutated after creation.
func (s *Store) archive(upgradeID string) error {
	if upgradeID == "" {
		return nil
	}

	data, err := os.ReadFile(s.statePath())
	if err != nil {
		return fmt.Errorf("failed to read state for archival: %w", err)
	}

	dest := filepath.Join(s.HistoryDir(), upgradeID+".json")

	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", upgradeID, err)
	}

	return nil
}
