package version

import "context"

// ReleaseClient looks up the latest published release for a component.
type ReleaseClient interface {
	LatestRelease(ctx context.Context, component string) (string, error)
}
