package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCreateAndRestore(t *testing.T) {
	workDir := t.TempDir()
	binary := filepath.Join(workDir, "bin", "node-agent")
	conf := filepath.Join(workDir, "etc", "node-agent.yaml")

	writeTestFile(t, binary, "binary v1")
	writeTestFile(t, conf, "port: 9100")

	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	dir, err := mgr.Create("node-agent", "1.0.0", []string{binary, conf})
	require.NoError(t, err)
	require.DirExists(t, dir)

	meta, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, "node-agent", meta.Component)
	assert.Equal(t, "1.0.0", meta.FromVersion)
	assert.Equal(t, 2, meta.Items)

	// Simulate a bad upgrade, then restore.
	writeTestFile(t, binary, "binary v2, broken")
	require.NoError(t, os.Remove(conf))

	require.NoError(t, mgr.Restore(dir))

	restored, err := os.ReadFile(binary)
	require.NoError(t, err)
	assert.Equal(t, "binary v1", string(restored))

	restored, err = os.ReadFile(conf)
	require.NoError(t, err)
	assert.Equal(t, "port: 9100", string(restored))
}

func TestCreateSkipsMissingSources(t *testing.T) {
	workDir := t.TempDir()
	binary := filepath.Join(workDir, "node-agent")
	writeTestFile(t, binary, "binary")

	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	dir, err := mgr.Create("node-agent", "1.0.0",
		[]string{binary, filepath.Join(workDir, "does-not-exist.conf")})
	require.NoError(t, err)

	meta, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Items)
}

func TestCreateEmptyBackup(t *testing.T) {
	base := t.TempDir()

	mgr, err := NewManager(base)
	require.NoError(t, err)

	_, err = mgr.Create("node-agent", "1.0.0", []string{filepath.Join(base, "nothing-here")})
	assert.ErrorIs(t, err, ErrEmptyBackup)

	// The aborted backup directory must not linger.
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreMissingMetadata(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	err = mgr.Restore(t.TempDir())
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestList(t *testing.T) {
	workDir := t.TempDir()
	binary := filepath.Join(workDir, "node-agent")
	writeTestFile(t, binary, "binary")

	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	metas, err := mgr.List()
	require.NoError(t, err)
	assert.Empty(t, metas)

	_, err = mgr.Create("node-agent", "1.0.0", []string{binary})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.Create("process-agent", "2.0.0", []string{binary})
	require.NoError(t, err)

	metas, err = mgr.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, "process-agent", metas[0].Component, "newest first")
	assert.Equal(t, "node-agent", metas[1].Component)
}

func TestLatestFor(t *testing.T) {
	workDir := t.TempDir()
	binary := filepath.Join(workDir, "node-agent")
	writeTestFile(t, binary, "binary")

	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.LatestFor("node-agent")
	assert.ErrorIs(t, err, ErrNoBackup)

	first, err := mgr.Create("node-agent", "1.0.0", []string{binary})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	second, err := mgr.Create("node-agent", "1.1.0", []string{binary})
	require.NoError(t, err)

	got, err := mgr.LatestFor("node-agent")
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.NotEqual(t, first, got)
}
