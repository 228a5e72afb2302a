/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package services pkg/services/systemd.go controls systemd units by
// shelling out to systemctl.
package services

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	maxUnitNameLength = 256
	systemctlTimeout  = 30 * time.Second
)

var (
	errInvalidUnitName = errors.New("invalid unit name")
	errEmptyUnitPath   = errors.New("systemctl reported no unit file path")

	unitNameRe = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)
)

// SystemdManager implements Manager using systemctl.
type SystemdManager struct{}

// NewSystemdManager creates a systemctl-backed service manager.
func NewSystemdManager() *SystemdManager {
	return &SystemdManager{}
}

func validateUnitName(unit string) error {
	if unit == "" || len(unit) > maxUnitNameLength || !unitNameRe.MatchString(unit) {
		return fmt.Errorf("%w: %q", errInvalidUnitName, unit)
	}

	return nil
}

func (s *SystemdManager) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, systemctlTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "systemctl", args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(output)), fmt.Errorf("systemctl %s failed: %w", strings.Join(args, " "), err)
	}

	return strings.TrimSpace(string(output)), nil
}

// IsActive reports whether the unit is active, with the raw status string.
func (s *SystemdManager) IsActive(ctx context.Context, unit string) (bool, string, error) {
	if err := validateUnitName(unit); err != nil {
		return false, "", err
	}

	// is-active exits non-zero for inactive units; that is a status, not
	// an error.
	status, err := s.run(ctx, "is-active", unit)
	if err != nil && status == "" {
		return false, "", err
	}

	return status == "active", status, nil
}

func (s *SystemdManager) Start(ctx context.Context, unit string) error {
	return s.verb(ctx, "start", unit)
}

func (s *SystemdManager) Stop(ctx context.Context, unit string) error {
	return s.verb(ctx, "stop", unit)
}

func (s *SystemdManager) Restart(ctx context.Context, unit string) error {
	return s.verb(ctx, "restart", unit)
}

func (s *SystemdManager) Enable(ctx context.Context, unit string) error {
	return s.verb(ctx, "enable", unit)
}

func (s *SystemdManager) Disable(ctx context.Context, unit string) error {
	return s.verb(ctx, "disable", unit)
}

func (s *SystemdManager) verb(ctx context.Context, verb, unit string) error {
	if err := validateUnitName(unit); err != nil {
		return err
	}

	_, err := s.run(ctx, verb, unit)

	return err
}

// UnitFilePath returns the path of the unit's definition file.
func (s *SystemdManager) UnitFilePath(ctx context.Context, unit string) (string, error) {
	if err := validateUnitName(unit); err != nil {
		return "", err
	}

	out, err := s.run(ctx, "show", "-p", "FragmentPath", "--value", unit)
	if err != nil {
		return "", err
	}

	if out == "" {
		return "", fmt.Errorf("%w: %s", errEmptyUnitPath, unit)
	}

	return out, nil
}
