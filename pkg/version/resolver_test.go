package version

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsforge/stackupgrade/pkg/config"
)

type fakeReleaseClient struct {
	releases map[string]string
	err      error
	calls    int
}

func (f *fakeReleaseClient) LatestRelease(_ context.Context, component string) (string, error) {
	f.calls++

	if f.err != nil {
		return "", f.err
	}

	ver, ok := f.releases[component]
	if !ok {
		return "", errors.New("no release")
	}

	return ver, nil
}

func resolverConfig(components ...config.ComponentConfig) *config.UpgradeConfig {
	return &config.UpgradeConfig{
		StateDir:   "/var/lib/stackupgrade",
		BackupDir:  "/var/lib/stackupgrade/backups",
		Components: components,
	}
}

func TestResolvePinned(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "pinned",
		Version:    "1.2.3",
	})

	r := NewResolver(cfg, nil, nil, nil)

	got, err := r.Resolve(context.Background(), "node-agent")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", got)
}

func TestResolvePinnedFallsBackToManifest(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "pinned",
	})

	r := NewResolver(cfg, nil, nil, map[string]string{"node-agent": "2.0.0"})

	got, err := r.Resolve(context.Background(), "node-agent")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got)
}

func TestResolvePinnedTargetVersion(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:          "node-agent",
		BinaryPath:    "/usr/local/bin/node-agent",
		Strategy:      "pinned",
		TargetVersion: "2.0.0",
	})

	r := NewResolver(cfg, nil, nil, map[string]string{"node-agent": "1.5.0"})

	got, err := r.Resolve(context.Background(), "node-agent")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got, "target_version beats the manifest fallback")
}

func TestResolvePinnedVersionBeatsTargetVersion(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:          "node-agent",
		BinaryPath:    "/usr/local/bin/node-agent",
		Strategy:      "pinned",
		Version:       "1.2.3",
		TargetVersion: "2.0.0",
	})

	r := NewResolver(cfg, nil, nil, nil)

	got, err := r.Resolve(context.Background(), "node-agent")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", got)
}

func TestResolvePinnedNothingAvailable(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "pinned",
	})

	r := NewResolver(cfg, nil, nil, nil)

	_, err := r.Resolve(context.Background(), "node-agent")
	assert.ErrorIs(t, err, ErrNotResolvable)
}

func TestResolveLatest(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "latest",
	})

	client := &fakeReleaseClient{releases: map[string]string{"node-agent": "v3.1.0"}}
	r := NewResolver(cfg, client, nil, nil)

	got, err := r.Resolve(context.Background(), "node-agent")
	require.NoError(t, err)
	assert.Equal(t, "3.1.0", got, "leading v is stripped")
}

func TestResolveLatestUsesCache(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "latest",
	})

	client := &fakeReleaseClient{releases: map[string]string{"node-agent": "3.1.0"}}
	cache := NewCache("", time.Minute, time.Hour)
	r := NewResolver(cfg, client, cache, nil)

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), "node-agent")
		require.NoError(t, err)
		assert.Equal(t, "3.1.0", got)
	}

	assert.Equal(t, 1, client.calls, "subsequent resolutions hit the cache")
}

func TestResolveLatestFallbackChain(t *testing.T) {
	tests := []struct {
		name     string
		comp     config.ComponentConfig
		manifest map[string]string
		want     string
		wantErr  error
	}{
		{
			name: "fallback version when API fails",
			comp: config.ComponentConfig{
				Name: "node-agent", BinaryPath: "/bin/a",
				Strategy: "latest", FallbackVersion: "1.0.0",
			},
			want: "1.0.0",
		},
		{
			name: "manifest version when no fallback",
			comp: config.ComponentConfig{
				Name: "node-agent", BinaryPath: "/bin/a", Strategy: "latest",
			},
			manifest: map[string]string{"node-agent": "0.9.0"},
			want:     "0.9.0",
		},
		{
			name: "unresolvable when chain exhausted",
			comp: config.ComponentConfig{
				Name: "node-agent", BinaryPath: "/bin/a", Strategy: "latest",
			},
			wantErr: ErrNotResolvable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := resolverConfig(tt.comp)
			client := &fakeReleaseClient{err: errors.New("api down")}
			r := NewResolver(cfg, client, nil, tt.manifest)

			got, err := r.Resolve(context.Background(), "node-agent")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name   string
		latest string
		pinned string
		want   string
	}{
		{"latest inside range", "1.5.0", "1.2.0", "1.5.0"},
		{"latest outside range falls back to pinned", "2.1.0", "1.2.0", "1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := resolverConfig(config.ComponentConfig{
				Name:         "node-agent",
				BinaryPath:   "/usr/local/bin/node-agent",
				Strategy:     "range",
				Version:      tt.pinned,
				VersionRange: ">=1.2.0, <2.0.0",
			})

			client := &fakeReleaseClient{releases: map[string]string{"node-agent": tt.latest}}
			r := NewResolver(cfg, client, nil, nil)

			got, err := r.Resolve(context.Background(), "node-agent")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLTSBehavesAsLatest(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "lts",
	})

	client := &fakeReleaseClient{releases: map[string]string{"node-agent": "3.1.0"}}
	r := NewResolver(cfg, client, nil, nil)

	got, err := r.Resolve(context.Background(), "node-agent")
	require.NoError(t, err)
	assert.Equal(t, "3.1.0", got)
}

func TestResolveOverrides(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "pinned",
		Version:    "1.2.3",
	})

	t.Run("per-run override beats strategy", func(t *testing.T) {
		r := NewResolver(cfg, nil, nil, nil)
		r.SetOverride("node-agent", "9.9.9")

		got, err := r.Resolve(context.Background(), "node-agent")
		require.NoError(t, err)
		assert.Equal(t, "9.9.9", got)
	})

	t.Run("environment beats per-run override", func(t *testing.T) {
		t.Setenv("STACKUPGRADE_VERSION_NODE_AGENT", "8.8.8")

		r := NewResolver(cfg, nil, nil, nil)
		r.SetOverride("node-agent", "9.9.9")

		got, err := r.Resolve(context.Background(), "node-agent")
		require.NoError(t, err)
		assert.Equal(t, "8.8.8", got)
	})
}

func TestResolveRejectsInvalidResult(t *testing.T) {
	cfg := resolverConfig(config.ComponentConfig{
		Name:       "node-agent",
		BinaryPath: "/usr/local/bin/node-agent",
		Strategy:   "latest",
	})

	client := &fakeReleaseClient{releases: map[string]string{"node-agent": "not-a-version"}}
	r := NewResolver(cfg, client, nil, nil)

	_, err := r.Resolve(context.Background(), "node-agent")
	assert.ErrorIs(t, err, ErrNotResolvable)
}

func TestResolveUnknownComponent(t *testing.T) {
	r := NewResolver(resolverConfig(), nil, nil, nil)

	_, err := r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownComponent)
}
