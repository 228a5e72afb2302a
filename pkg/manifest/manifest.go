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

// Package manifest pkg/manifest/manifest.go loads and validates the YAML
// module manifests describing each monitoring component.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/obsforge/stackupgrade/pkg/config"
	"github.com/obsforge/stackupgrade/pkg/version"
)

var (
	ErrSchemaInvalid   = errors.New("manifest failed schema validation")
	ErrPortCollision   = errors.New("port used by more than one manifest")
	ErrDependencyCycle = errors.New("dependency cycle detected")
	ErrMissingDep      = errors.New("dependency not present in manifest set")
)

// manifestSchema is the JSON schema every manifest must satisfy.
const manifestSchema = `{
  "type": "object",
  "required": ["name", "version", "port"],
  "properties": {
    "name": {"type": "string", "pattern": "^[a-z0-9][a-z0-9._-]*$"},
    "version": {"type": "string"},
    "port": {"type": "integer", "minimum": 1, "maximum": 65535},
    "category": {"type": "string"},
    "install": {
      "type": "object",
      "required": ["action"],
      "properties": {"action": {"type": "string"}}
    },
    "uninstall": {
      "type": "object",
      "required": ["action"],
      "properties": {"action": {"type": "string"}}
    },
    "detection": {
      "type": "object",
      "properties": {
        "commands": {"type": "array"},
        "services": {"type": "array"},
        "files": {"type": "array"}
      }
    },
    "dependencies": {"type": "array", "items": {"type": "string"}}
  }
}`

// Load reads and validates a single manifest file.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if err := config.LoadYAMLFile(path, &m); err != nil {
		return nil, err
	}

	if err := validateSchema(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if err := version.Validate(m.Version); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	return &m, nil
}

// LoadDir loads every *.yaml / *.yml manifest under dir and runs the
// cross-manifest lint checks.
func LoadDir(dir string) (map[string]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest dir: %w", err)
	}

	manifests := make(map[string]*Manifest)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		m, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		manifests[m.Name] = m
	}

	if err := Lint(manifests); err != nil {
		return nil, err
	}

	return manifests, nil
}

func validateSchema(m *Manifest) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaInvalid, strings.Join(msgs, "; "))
	}

	return nil
}

// Lint runs the cross-manifest checks: port uniqueness and dependency
// existence.
func Lint(manifests map[string]*Manifest) error {
	ports := make(map[int]string)

	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		m := manifests[name]

		if holder, ok := ports[m.Port]; ok {
			return fmt.Errorf("%w: %d (%s and %s)", ErrPortCollision, m.Port, holder, name)
		}

		ports[m.Port] = name

		for _, dep := range m.Dependencies {
			if _, ok := manifests[dep]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrMissingDep, name, dep)
			}
		}
	}

	return nil
}

// Order returns manifest names sorted so every component appears after
// its dependencies, detecting cycles. Ties break alphabetically so the
// order is stable.
func Order(manifests map[string]*Manifest) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	states := make(map[string]int, len(manifests))
	order := make([]string, 0, len(manifests))

	var visit func(name string) error

	visit = func(name string) error {
		switch states[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrDependencyCycle, name)
		}

		states[name] = visiting

		m := manifests[name]

		deps := append([]string(nil), m.Dependencies...)
		sort.Strings(deps)

		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		states[name] = done
		order = append(order, name)

		return nil
	}

	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Versions maps component names to their manifest-declared versions, the
// resolver's last fallback.
func Versions(manifests map[string]*Manifest) map[string]string {
	versions := make(map[string]string, len(manifests))

	for name, m := range manifests {
		versions[name] = m.Version
	}

	return versions
}
