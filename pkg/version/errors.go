// Package version pkg/version/errors.go provides errors for the version package.

package version

import "errors"

var (
	// ErrNotResolvable indicates that no valid version could be produced
	// for a component by any configured strategy or fallback.
	ErrNotResolvable = errors.New("version not resolvable")

	ErrInvalidVersion    = errors.New("invalid semantic version")
	ErrInvalidConstraint = errors.New("invalid range constraint")
	ErrEmptyRange        = errors.New("empty version range")
	ErrUnknownComponent  = errors.New("unknown component")

	errReleaseStatus = errors.New("release API returned non-200 status")
	errEmptyRelease  = errors.New("release API returned no version")
	errRateLimited   = errors.New("release API rate limit exceeded")
)
