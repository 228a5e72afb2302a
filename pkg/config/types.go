package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

// HealthCheckConfig describes the post-install check for a component.
type HealthCheckConfig struct {
	Type           string   `json:"type"` // "http" or "tcp"
	Endpoint       string   `json:"endpoint"`
	ExpectedStatus int      `json:"expected_status,omitempty"`
	Timeout        Duration `json:"timeout,omitempty"`
	Interval       Duration `json:"interval,omitempty"`
}

// ComponentConfig is the per-component upgrade configuration. Manifests
// carry the immutable module description; this carries operator policy.
type ComponentConfig struct {
	Name                string             `json:"name"`
	BinaryPath          string             `json:"binary_path"`
	Service             string             `json:"service,omitempty"`
	ConfigPaths         []string           `json:"config_paths,omitempty"`
	Strategy            string             `json:"strategy"` // pinned, latest, range, lts
	Version             string             `json:"version,omitempty"`
	FallbackVersion     string             `json:"fallback_version,omitempty"`
	VersionRange        string             `json:"version_range,omitempty"`
	TargetVersion       string             `json:"target_version,omitempty"`
	IntermediateVersion string             `json:"intermediate_version,omitempty"`
	InstallAction       string             `json:"install_action"`
	MetricsEndpoint     string             `json:"metrics_endpoint,omitempty"`
	HealthCheck         *HealthCheckConfig `json:"health_check,omitempty"`
	DependsOn           []string           `json:"depends_on,omitempty"`
	MinDiskMB           int64              `json:"min_disk_mb,omitempty"`
}

// ReleaseAPIConfig points the version resolver at a release endpoint.
type ReleaseAPIConfig struct {
	BaseURL           string   `json:"base_url"`
	CacheFile         string   `json:"cache_file,omitempty"`
	CacheTTL          Duration `json:"cache_ttl,omitempty"`    // default 900s
	CacheMaxAge       Duration `json:"cache_max_age,omitempty"` // default 86400s
	RequestsPerMinute int      `json:"requests_per_minute,omitempty"`
}

// UpgradeConfig is the orchestrator configuration. Components are upgraded
// in declaration order; the prerequisite check enforces the dependency graph.
type UpgradeConfig struct {
	StateDir    string            `json:"state_dir"`
	BackupDir   string            `json:"backup_dir"`
	TxDir       string            `json:"tx_dir"`
	ManifestDir string            `json:"manifest_dir,omitempty"`
	HistoryDB   string            `json:"history_db,omitempty"`
	ListenAddr  string            `json:"listen_addr,omitempty"` // status API, e.g. :8428
	ReleaseAPI  ReleaseAPIConfig  `json:"release_api"`
	Components  []ComponentConfig `json:"components"`
}

var (
	errNoStateDir      = fmt.Errorf("state_dir is required")
	errNoBackupDir     = fmt.Errorf("backup_dir is required")
	errNoComponents    = fmt.Errorf("at least one component is required")
	errComponentName   = fmt.Errorf("component name is required")
	errComponentBinary = fmt.Errorf("component binary_path is required")
	errUnknownStrategy = fmt.Errorf("unknown version strategy")
	errUnknownDep      = fmt.Errorf("depends_on references unknown component")
)

// Validate implements Validator.
func (c *UpgradeConfig) Validate() error {
	if c.StateDir == "" {
		return errNoStateDir
	}

	if c.BackupDir == "" {
		return errNoBackupDir
	}

	if len(c.Components) == 0 {
		return errNoComponents
	}

	known := make(map[string]struct{}, len(c.Components))
	for i := range c.Components {
		known[c.Components[i].Name] = struct{}{}
	}

	for i := range c.Components {
		comp := &c.Components[i]

		if comp.Name == "" {
			return errComponentName
		}

		if comp.BinaryPath == "" {
			return fmt.Errorf("%w: %s", errComponentBinary, comp.Name)
		}

		switch strings.ToLower(comp.Strategy) {
		case "", "pinned", "latest", "range", "lts":
		default:
			return fmt.Errorf("%w: %s (component %s)", errUnknownStrategy, comp.Strategy, comp.Name)
		}

		for _, dep := range comp.DependsOn {
			if _, ok := known[dep]; !ok {
				return fmt.Errorf("%w: %s -> %s", errUnknownDep, comp.Name, dep)
			}
		}
	}

	return nil
}

// Component returns the configuration for a named component, or nil.
func (c *UpgradeConfig) Component(name string) *ComponentConfig {
	for i := range c.Components {
		if c.Components[i].Name == name {
			return &c.Components[i]
		}
	}

	return nil
}
