// Package upgrade pkg/upgrade/install.go - external install action
// invocation and artifact checksums.

package upgrade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"
)

const installTimeout = 10 * time.Minute

// runInstall invokes the component's install action. The component name,
// target version and backup path are passed as environment parameters; a
// non-zero exit is the sole signal of install failure.
func (p *Pipeline) runInstall(ctx context.Context, name, action, targetVersion, backupPath string) error {
	ctx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, action)
	cmd.Env = append(os.Environ(),
		"STACKUPGRADE_COMPONENT="+name,
		"STACKUPGRADE_TARGET_VERSION="+targetVersion,
		"STACKUPGRADE_BACKUP_PATH="+backupPath,
	)

	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		log.Printf("Install action for %s: %s", name, string(output))
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInstallFailed, name, err)
	}

	return nil
}

// fileChecksum returns the hex sha256 of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for checksum: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
