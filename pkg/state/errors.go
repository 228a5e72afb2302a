// Package state pkg/state/errors.go provides errors for the state package.

package state

import "errors"

var (
	// ErrLockTimeout is fatal to the whole run; no safe mutation can
	// proceed without the lock.
	ErrLockTimeout = errors.New("timed out waiting for state lock")

	// ErrStateCorrupt indicates the state file exists but is unreadable
	// or not valid JSON.
	ErrStateCorrupt = errors.New("state file is corrupt")

	ErrNoSession          = errors.New("no upgrade session in progress")
	ErrSessionActive      = errors.New("an upgrade session is already in progress")
	ErrUnknownCheckpoint  = errors.New("unknown checkpoint")
	ErrUnknownComponentID = errors.New("component not present in session")

	errLockNotHeld = errors.New("lock not held")
)
