// Package upgrade pkg/upgrade/detect.go - installed-version detection by
// invoking the component binary.

package upgrade

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/obsforge/stackupgrade/pkg/manifest"
	"github.com/obsforge/stackupgrade/pkg/version"
)

const detectTimeout = 5 * time.Second

var versionOutputRe = regexp.MustCompile(`\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?`)

// DetectVersion runs the component's binary with --version under a
// bounded timeout and extracts a well-formed version from the output.
// A missing or non-executable binary means "not installed" and returns
// an empty version with no error.
func DetectVersion(ctx context.Context, binaryPath string) (string, error) {
	if _, err := os.Stat(binaryPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", fmt.Errorf("failed to stat %s: %w", binaryPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, "--version")

	output, err := cmd.CombinedOutput()
	if err != nil {
		// Exit errors with usable output still carry a version for many
		// exporters; anything else is "not installed".
		if len(output) == 0 {
			log.Printf("Version detection for %s failed, treating as not installed: %v", binaryPath, err)
			return "", nil
		}
	}

	match := versionOutputRe.FindString(string(output))
	if match == "" {
		return "", fmt.Errorf("%w: %s", errNoVersionOutput, binaryPath)
	}

	if err := version.Validate(match); err != nil {
		return "", err
	}

	return match, nil
}

// DetectionStatus is one component's installation report.
type DetectionStatus struct {
	Component  string  `json:"component"`
	Version    string  `json:"version,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Installed  bool    `json:"installed"`
}

// DetectComponents probes every configured component: the binary's
// version output, plus the manifest's weighted detection rules when a
// manifest is present. A component counts as installed when either the
// version probe succeeds or the summed rule confidence clears the
// threshold.
func (p *Pipeline) DetectComponents(ctx context.Context) []DetectionStatus {
	statuses := make([]DetectionStatus, 0, len(p.cfg.Components))

	for i := range p.cfg.Components {
		comp := &p.cfg.Components[i]

		ver, err := DetectVersion(ctx, comp.BinaryPath)
		if err != nil {
			log.Printf("Version detection for %s: %v", comp.Name, err)
		}

		st := DetectionStatus{
			Component: comp.Name,
			Version:   ver,
			Installed: ver != "",
		}

		if m, ok := p.manifests[comp.Name]; ok {
			st.Confidence = manifest.Detect(ctx, m, p.svc)
			if st.Confidence >= manifest.DetectThreshold {
				st.Installed = true
			}
		}

		statuses = append(statuses, st)
	}

	return statuses
}
