// Package state pkg/state/session.go - session and component lifecycle
// operations. Each operation is one atomic update of the state file.

package state

import (
	"fmt"
	"log"
	"time"
)

// BeginUpgrade starts a new session, resetting components, errors and
// checkpoints. The upgrade id is time-derived and unique per run.
func (s *Store) BeginUpgrade(mode string) (*Session, error) {
	return s.AtomicUpdate(func(session *Session) error {
		if session.Status == SessionInProgress {
			return fmt.Errorf("%w: %s", ErrSessionActive, session.UpgradeID)
		}

		now := time.Now().UTC()

		session.UpgradeID = fmt.Sprintf("upgrade-%s", now.Format("20060102-150405"))
		session.Status = SessionInProgress
		session.Mode = mode
		session.StartedAt = &now
		session.CompletedAt = nil
		session.CurrentPhase = ""
		session.CurrentComponent = ""
		session.Components = make(map[string]*ComponentRecord)
		session.Errors = []SessionError{}
		session.Checkpoints = []CheckpointEntry{}

		return nil
	})
}

// CompleteUpgrade marks the session completed and archives it.
func (s *Store) CompleteUpgrade() (*Session, error) {
	return s.finishUpgrade(SessionCompleted, "")
}

// FailUpgrade marks the session failed with message and archives it.
func (s *Store) FailUpgrade(message string) (*Session, error) {
	return s.finishUpgrade(SessionFailed, message)
}

func (s *Store) finishUpgrade(status SessionStatus, message string) (*Session, error) {
	var upgradeID string

	session, err := s.AtomicUpdate(func(session *Session) error {
		if session.Status != SessionInProgress {
			return ErrNoSession
		}

		now := time.Now().UTC()

		session.Status = status
		session.CompletedAt = &now
		session.CurrentComponent = ""

		if message != "" {
			session.Errors = append(session.Errors, SessionError{Timestamp: now, Message: message})
		}

		upgradeID = session.UpgradeID

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.archive(upgradeID); err != nil {
		log.Printf("Failed to archive session %s: %v", upgradeID, err)
	}

	return session, nil
}

// SetPhase records the phase currently being worked.
func (s *Store) SetPhase(phase string) error {
	_, err := s.AtomicUpdate(func(session *Session) error {
		session.CurrentPhase = phase
		return nil
	})

	return err
}

// AppendError adds a timestamped message to the session error log.
func (s *Store) AppendError(message string) error {
	_, err := s.AtomicUpdate(func(session *Session) error {
		session.Errors = append(session.Errors, SessionError{
			Timestamp: time.Now().UTC(),
			Message:   message,
		})

		return nil
	})

	return err
}

// BeginComponent creates or reuses the component record, increments the
// attempt counter and moves it to in_progress.
func (s *Store) BeginComponent(name, fromVersion, toVersion string) (*Session, error) {
	return s.AtomicUpdate(func(session *Session) error {
		rec, ok := session.Components[name]
		if !ok {
			rec = &ComponentRecord{Status: ComponentPending}
			session.Components[name] = rec
		}

		now := time.Now().UTC()

		rec.Status = ComponentInProgress
		rec.FromVersion = fromVersion
		rec.ToVersion = toVersion
		rec.StartedAt = &now
		rec.CompletedAt = nil
		rec.Attempts++
		rec.Error = ""

		session.CurrentComponent = name

		return nil
	})
}

// CompleteComponent records a successful upgrade, with the installed
// artifact checksum and the backup path used.
func (s *Store) CompleteComponent(name, checksum, backupPath string) (*Session, error) {
	return s.componentTerminal(name, func(rec *ComponentRecord) {
		rec.Status = ComponentCompleted
		rec.Checksum = checksum
		rec.BackupPath = backupPath
		rec.RollbackAvailable = backupPath != ""
		rec.HealthCheckPassed = true
	})
}

// FailComponent records a failed upgrade with its error message.
func (s *Store) FailComponent(name, message string) (*Session, error) {
	return s.componentTerminal(name, func(rec *ComponentRecord) {
		rec.Status = ComponentFailed
		rec.Error = message
	})
}

// SkipComponent records that no work was needed or possible.
func (s *Store) SkipComponent(name, reason string) (*Session, error) {
	return s.AtomicUpdate(func(session *Session) error {
		rec, ok := session.Components[name]
		if !ok {
			rec = &ComponentRecord{Status: ComponentPending}
			session.Components[name] = rec
		}

		now := time.Now().UTC()

		rec.Status = ComponentSkipped
		rec.CompletedAt = &now
		rec.Error = reason

		if session.CurrentComponent == name {
			session.CurrentComponent = ""
		}

		return nil
	})
}

// SetBackup records the backup location for a component mid-flight.
func (s *Store) SetBackup(name, backupPath string) error {
	_, err := s.AtomicUpdate(func(session *Session) error {
		rec, ok := session.Components[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownComponentID, name)
		}

		rec.BackupPath = backupPath
		rec.RollbackAvailable = backupPath != ""

		return nil
	})

	return err
}

func (s *Store) componentTerminal(name string, mutate func(*ComponentRecord)) (*Session, error) {
	return s.AtomicUpdate(func(session *Session) error {
		rec, ok := session.Components[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownComponentID, name)
		}

		now := time.Now().UTC()

		mutate(rec)
		rec.CompletedAt = &now

		if session.CurrentComponent == name {
			session.CurrentComponent = ""
		}

		return nil
	})
}
