package upgrade

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsforge/stackupgrade/pkg/config"
	"github.com/obsforge/stackupgrade/pkg/manifest"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) //nolint:gosec // test script

	return path
}

func TestDetectVersion(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		script  string
		want    string
		wantErr bool
	}{
		{
			name:   "plain version line",
			script: `echo "node-agent, version 1.7.0 (branch: HEAD)"`,
			want:   "1.7.0",
		},
		{
			name:   "version on stderr with nonzero exit",
			script: `echo "version 2.3.1" >&2; exit 1`,
			want:   "2.3.1",
		},
		{
			name:   "prerelease version",
			script: `echo "0.9.0-rc.2"`,
			want:   "0.9.0-rc.2",
		},
		{
			name:    "no version in output",
			script:  `echo "usage: node-agent [flags]"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := writeScript(t, dir, "bin-"+tt.name, tt.script)

			got, err := DetectVersion(context.Background(), bin)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectVersionMissingBinary(t *testing.T) {
	got, err := DetectVersion(context.Background(), filepath.Join(t.TempDir(), "nope"))

	require.NoError(t, err)
	assert.Empty(t, got, "missing binary means not installed")
}

func TestDetectVersionSilentFailure(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "silent", "exit 1")

	got, err := DetectVersion(context.Background(), bin)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectComponents(t *testing.T) {
	dir := t.TempDir()

	versioned := writeScript(t, dir, "node-agent", `echo "version 1.7.0"`)

	// No binary, but the manifest's file probe finds its config.
	confPath := filepath.Join(dir, "process-agent.yml")
	require.NoError(t, os.WriteFile(confPath, []byte("{}"), 0o600))

	cfg := &config.UpgradeConfig{
		Components: []config.ComponentConfig{
			{Name: "node-agent", BinaryPath: versioned},
			{Name: "process-agent", BinaryPath: filepath.Join(dir, "process-agent")},
			{Name: "collector", BinaryPath: filepath.Join(dir, "collector")},
		},
	}

	manifests := map[string]*manifest.Manifest{
		"process-agent": {
			Name:    "process-agent",
			Version: "2.0.0",
			Detection: manifest.Detection{
				Files: []manifest.DetectionFile{{Path: confPath, Weight: 0.6}},
			},
		},
	}

	p := &Pipeline{cfg: cfg, manifests: manifests}

	statuses := p.DetectComponents(context.Background())
	require.Len(t, statuses, 3)

	byName := make(map[string]DetectionStatus, len(statuses))
	for _, st := range statuses {
		byName[st.Component] = st
	}

	assert.True(t, byName["node-agent"].Installed)
	assert.Equal(t, "1.7.0", byName["node-agent"].Version)

	assert.True(t, byName["process-agent"].Installed, "detection rules clear the threshold")
	assert.Empty(t, byName["process-agent"].Version)
	assert.InDelta(t, 0.6, byName["process-agent"].Confidence, 0.001)

	assert.False(t, byName["collector"].Installed)
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	sum, err := fileChecksum(path)
	require.NoError(t, err)

	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = fileChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
