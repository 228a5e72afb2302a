// Package manifest pkg/manifest/detect.go - weighted-confidence detection
// of installed components.

package manifest

import (
	"context"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/obsforge/stackupgrade/pkg/services"
)

const (
	detectCommandTimeout = 5 * time.Second

	// DetectThreshold is the minimum summed weight to consider a
	// component installed.
	DetectThreshold = 0.5
)

// Detect runs the manifest's detection rules and returns the summed
// confidence of the probes that matched. svc may be nil to skip service
// probes.
func Detect(ctx context.Context, m *Manifest, svc services.Manager) float64 {
	confidence := 0.0

	for _, probe := range m.Detection.Commands {
		if probe.Command == "" {
			continue
		}

		if runDetectCommand(ctx, probe.Command) {
			confidence += probe.Weight
		}
	}

	for _, probe := range m.Detection.Services {
		if svc == nil || probe.Name == "" {
			continue
		}

		active, _, err := svc.IsActive(ctx, probe.Name)
		if err != nil {
			log.Printf("Detection of %s: service probe %s: %v", m.Name, probe.Name, err)
			continue
		}

		if active {
			confidence += probe.Weight
		}
	}

	for _, probe := range m.Detection.Files {
		if probe.Path == "" {
			continue
		}

		if _, err := os.Stat(probe.Path); err == nil {
			confidence += probe.Weight
		}
	}

	return confidence
}

// Installed reports whether the detection confidence clears the
// threshold.
func Installed(ctx context.Context, m *Manifest, svc services.Manager) bool {
	return Detect(ctx, m, svc) >= DetectThreshold
}

func runDetectCommand(ctx context.Context, command string) bool {
	ctx, cancel := context.WithTimeout(ctx, detectCommandTimeout)
	defer cancel()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return false
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	return cmd.Run() == nil
}
