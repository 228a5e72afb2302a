package state

import "time"

// schemaVersion is the version field written into every state document.
const schemaVersion = 1

// SessionStatus is the lifecycle state of an upgrade session.
type SessionStatus string

const (
	SessionIdle       SessionStatus = "idle"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionRolledBack SessionStatus = "rolled_back"
)

// ComponentStatus is the lifecycle state of a single component within a
// session. Transitions only along pending -> in_progress ->
// {completed | failed | skipped}.
type ComponentStatus string

const (
	ComponentPending    ComponentStatus = "pending"
	ComponentInProgress ComponentStatus = "in_progress"
	ComponentCompleted  ComponentStatus = "completed"
	ComponentFailed     ComponentStatus = "failed"
	ComponentSkipped    ComponentStatus = "skipped"
)

// SessionError is one entry in the ordered session error log.
type SessionError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// CheckpointEntry indexes a full-state checkpoint file.
type CheckpointEntry struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ComponentRecord tracks one component's progress within a session.
// Records are never deleted within a session; skipped and failed records
// persist for audit.
type ComponentRecord struct {
	Status            ComponentStatus `json:"status"`
	FromVersion       string          `json:"from_version,omitempty"`
	ToVersion         string          `json:"to_version,omitempty"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Attempts          int             `json:"attempts"`
	BackupPath        string          `json:"backup_path,omitempty"`
	RollbackAvailable bool            `json:"rollback_available"`
	HealthCheckPassed bool            `json:"health_check_passed"`
	Checksum          string          `json:"checksum,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// Session is the durable state document for the current upgrade run.
type Session struct {
	Version          int                         `json:"version"`
	UpgradeID        string                      `json:"upgrade_id"`
	Status           SessionStatus               `json:"status"`
	Mode             string                      `json:"mode,omitempty"`
	StartedAt        *time.Time                  `json:"started_at,omitempty"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	CompletedAt      *time.Time                  `json:"completed_at,omitempty"`
	CurrentPhase     string                      `json:"current_phase,omitempty"`
	CurrentComponent string                      `json:"current_component,omitempty"`
	Components       map[string]*ComponentRecord `json:"components"`
	Errors           []SessionError              `json:"errors"`
	Checkpoints      []CheckpointEntry           `json:"checkpoints"`
}

// newSession returns a fresh idle session document.
func newSession() *Session {
	return &Session{
		Version:     schemaVersion,
		Status:      SessionIdle,
		Components:  make(map[string]*ComponentRecord),
		Errors:      []SessionError{},
		Checkpoints: []CheckpointEntry{},
	}
}

// Resumable reports whether the session can be picked up with --resume.
func (s *Session) Resumable() bool {
	return s.Status == SessionInProgress || s.Status == SessionFailed
}

// InProgressComponents lists components stuck in in_progress. More than
// one indicates a crash mid-upgrade.
func (s *Session) InProgressComponents() []string {
	var names []string

	for name, rec := range s.Components {
		if rec.Status == ComponentInProgress {
			names = append(names, name)
		}
	}

	return names
}
