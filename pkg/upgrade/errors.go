// Package upgrade pkg/upgrade/errors.go provides errors for the upgrade package.

package upgrade

import "errors"

var (
	// ErrPrerequisiteFailed aborts a component before any mutation; no
	// rollback is required because nothing was touched.
	ErrPrerequisiteFailed = errors.New("prerequisite check failed")

	// ErrInstallFailed means the external install action signaled
	// failure.
	ErrInstallFailed = errors.New("install action failed")

	// ErrHealthCheckFailed means the component never reached the
	// expected post-install state within the timeout.
	ErrHealthCheckFailed = errors.New("health check failed")

	// ErrRollbackFailed means restore itself errored; the component
	// needs manual intervention.
	ErrRollbackFailed = errors.New("rollback failed")

	ErrResumeRequired = errors.New("resumable session present, re-run with --resume")

	errInsufficientDisk  = errors.New("insufficient free disk space")
	errDependencyNotDone = errors.New("dependency not in a terminal state")
	errServiceMissing    = errors.New("declared service not known to systemd")
	errServiceFailed     = errors.New("declared service is in failed state")
	errNoHealthEndpoint  = errors.New("health check endpoint not configured")
	errUnknownCheckType  = errors.New("unknown health check type")
	errUnexpectedStatus  = errors.New("unexpected HTTP status")
	errEmptyMetrics      = errors.New("metrics payload is empty")
	errNoVersionOutput   = errors.New("no version string in command output")
)
