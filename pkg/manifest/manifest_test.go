package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodeAgentManifest = `
name: node-agent
version: 1.2.0
port: 9100
category: system
install:
  action: install-node-agent.sh
detection:
  files:
    - path: /usr/local/bin/node-agent
      weight: 0.6
  services:
    - name: node-agent.service
      weight: 0.4
`

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "node-agent.yaml", nodeAgentManifest)

	m, err := Load(filepath.Join(dir, "node-agent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "node-agent", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, 9100, m.Port)
	require.NotNil(t, m.Install)
	assert.Equal(t, "install-node-agent.sh", m.Install.Action)
	require.Len(t, m.Detection.Files, 1)
	assert.InDelta(t, 0.6, m.Detection.Files[0].Weight, 0.001)
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{
			name: "missing port",
			manifest: `
name: node-agent
version: 1.2.0
`,
		},
		{
			name: "port out of range",
			manifest: `
name: node-agent
version: 1.2.0
port: 70000
`,
		},
		{
			name: "uppercase name",
			manifest: `
name: NodeAgent
version: 1.2.0
port: 9100
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, "m.yaml", tt.manifest)

			_, err := Load(filepath.Join(dir, "m.yaml"))
			assert.ErrorIs(t, err, ErrSchemaInvalid)
		})
	}
}

func TestLoadRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "m.yaml", `
name: node-agent
version: not-a-version
port: 9100
`)

	_, err := Load(filepath.Join(dir, "m.yaml"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "node-agent.yaml", nodeAgentManifest)
	writeManifest(t, dir, "process-agent.yml", `
name: process-agent
version: 2.0.0
port: 9101
dependencies: [node-agent]
`)
	writeManifest(t, dir, "README.md", "not a manifest")

	manifests, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Len(t, manifests, 2)
	assert.Contains(t, manifests, "node-agent")
	assert.Contains(t, manifests, "process-agent")
}

func TestLintPortCollision(t *testing.T) {
	manifests := map[string]*Manifest{
		"a": {Name: "a", Version: "1.0.0", Port: 9100},
		"b": {Name: "b", Version: "1.0.0", Port: 9100},
	}

	err := Lint(manifests)
	assert.ErrorIs(t, err, ErrPortCollision)
}

func TestLintMissingDependency(t *testing.T) {
	manifests := map[string]*Manifest{
		"a": {Name: "a", Version: "1.0.0", Port: 9100, Dependencies: []string{"ghost"}},
	}

	err := Lint(manifests)
	assert.ErrorIs(t, err, ErrMissingDep)
}

func TestOrder(t *testing.T) {
	manifests := map[string]*Manifest{
		"collector":     {Name: "collector", Version: "1.0.0", Port: 9102, Dependencies: []string{"node-agent", "process-agent"}},
		"node-agent":    {Name: "node-agent", Version: "1.0.0", Port: 9100},
		"process-agent": {Name: "process-agent", Version: "1.0.0", Port: 9101, Dependencies: []string{"node-agent"}},
	}

	order, err := Order(manifests)
	require.NoError(t, err)
	require.Len(t, order, 3)

	index := make(map[string]int, len(order))
	for i, name := range order {
		index[name] = i
	}

	assert.Less(t, index["node-agent"], index["process-agent"])
	assert.Less(t, index["process-agent"], index["collector"])
}

func TestOrderDetectsCycle(t *testing.T) {
	manifests := map[string]*Manifest{
		"a": {Name: "a", Version: "1.0.0", Port: 9100, Dependencies: []string{"b"}},
		"b": {Name: "b", Version: "1.0.0", Port: 9101, Dependencies: []string{"a"}},
	}

	_, err := Order(manifests)
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestOrderIsStable(t *testing.T) {
	manifests := map[string]*Manifest{
		"c": {Name: "c", Version: "1.0.0", Port: 9102},
		"a": {Name: "a", Version: "1.0.0", Port: 9100},
		"b": {Name: "b", Version: "1.0.0", Port: 9101},
	}

	first, err := Order(manifests)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Order(manifests)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, []string{"a", "b", "c"}, first)
}

func TestVersions(t *testing.T) {
	manifests := map[string]*Manifest{
		"a": {Name: "a", Version: "1.0.0", Port: 9100},
		"b": {Name: "b", Version: "2.0.0", Port: 9101},
	}

	versions := Versions(manifests)
	assert.Equal(t, map[string]string{"a": "1.0.0", "b": "2.0.0"}, versions)
}
