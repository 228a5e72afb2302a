package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "state_dir": "/var/lib/stackupgrade",
  "backup_dir": "/var/lib/stackupgrade/backups",
  "tx_dir": "/var/lib/stackupgrade/tx",
  "release_api": {
    "base_url": "https://releases.example.com/v1",
    "cache_ttl": "15m",
    "requests_per_minute": 30
  },
  "components": [
    {
      "name": "node-agent",
      "binary_path": "/usr/local/bin/node-agent",
      "service": "node-agent.service",
      "strategy": "latest",
      "fallback_version": "1.7.0",
      "install_action": "/usr/local/lib/stackupgrade/install-node-agent.sh",
      "health_check": {
        "type": "http",
        "endpoint": "http://127.0.0.1:9100/metrics",
        "timeout": "90s"
      }
    },
    {
      "name": "process-agent",
      "binary_path": "/usr/local/bin/process-agent",
      "strategy": "pinned",
      "version": "2.1.0",
      "install_action": "/usr/local/lib/stackupgrade/install-process-agent.sh",
      "depends_on": ["node-agent"]
    }
  ]
}`

func TestLoadAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(validConfigJSON), 0o600))

	var cfg UpgradeConfig
	require.NoError(t, LoadAndValidate(path, &cfg))

	assert.Equal(t, "/var/lib/stackupgrade", cfg.StateDir)
	require.Len(t, cfg.Components, 2)

	nodeAgent := cfg.Component("node-agent")
	require.NotNil(t, nodeAgent)
	assert.Equal(t, "latest", nodeAgent.Strategy)
	require.NotNil(t, nodeAgent.HealthCheck)
	assert.Equal(t, 90*time.Second, time.Duration(nodeAgent.HealthCheck.Timeout))

	assert.Equal(t, 15*time.Minute, time.Duration(cfg.ReleaseAPI.CacheTTL))
	assert.Equal(t, []string{"node-agent"}, cfg.Component("process-agent").DependsOn)
	assert.Nil(t, cfg.Component("ghost"))
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var cfg UpgradeConfig
	assert.Error(t, LoadAndValidate(filepath.Join(t.TempDir(), "nope.json"), &cfg))
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"duration string", `"90s"`, 90 * time.Second, false},
		{"composite duration", `"1h30m"`, 90 * time.Minute, false},
		{"numeric nanoseconds", `1000000000`, time.Second, false},
		{"bad string", `"ninety seconds"`, 0, true},
		{"wrong type", `[1]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, time.Duration(d))
		})
	}
}

func TestUpgradeConfigValidate(t *testing.T) {
	base := func() *UpgradeConfig {
		return &UpgradeConfig{
			StateDir:  "/var/lib/stackupgrade",
			BackupDir: "/var/lib/stackupgrade/backups",
			Components: []ComponentConfig{
				{
					Name:          "node-agent",
					BinaryPath:    "/usr/local/bin/node-agent",
					Strategy:      "pinned",
					Version:       "1.0.0",
					InstallAction: "/bin/true",
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*UpgradeConfig)
		wantErr bool
	}{
		{"valid", func(*UpgradeConfig) {}, false},
		{"missing state dir", func(c *UpgradeConfig) { c.StateDir = "" }, true},
		{"missing backup dir", func(c *UpgradeConfig) { c.BackupDir = "" }, true},
		{"no components", func(c *UpgradeConfig) { c.Components = nil }, true},
		{"unnamed component", func(c *UpgradeConfig) { c.Components[0].Name = "" }, true},
		{"missing binary path", func(c *UpgradeConfig) { c.Components[0].BinaryPath = "" }, true},
		{"unknown strategy", func(c *UpgradeConfig) { c.Components[0].Strategy = "newest" }, true},
		{"empty strategy allowed", func(c *UpgradeConfig) { c.Components[0].Strategy = "" }, false},
		{"unknown dependency", func(c *UpgradeConfig) { c.Components[0].DependsOn = []string{"ghost"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: node-agent\nport: 9100\n"), 0o600))

	var out struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	}

	require.NoError(t, LoadYAMLFile(path, &out))
	assert.Equal(t, "node-agent", out.Name)
	assert.Equal(t, 9100, out.Port)
}
