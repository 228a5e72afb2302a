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

// Package backup pkg/backup/backup.go creates and restores per-component
// pre-upgrade snapshots of binary, service unit and configuration files.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

const metadataFileName = "metadata.json"

var (
	ErrNoMetadata  = errors.New("backup metadata missing or unreadable")
	ErrEmptyBackup = errors.New("nothing eligible for backup")
	ErrNoBackup    = errors.New("no backup found for component")
)

// Metadata describes one backup directory.
type Metadata struct {
	Component   string            `json:"component"`
	CreatedAt   time.Time         `json:"created_at"`
	FromVersion string            `json:"from_version,omitempty"`
	Items       int               `json:"items"`
	Files       map[string]string `json:"files"` // original path -> name inside backup dir
}

// Manager creates backups under a base directory. Backups are retained
// across the session for manual inspection; their lifecycle is
// independent of the session object.
type Manager struct {
	baseDir string
}

// NewManager creates a backup manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	return &Manager{baseDir: baseDir}, nil
}

// Create copies every existing path in sources into a fresh backup
// directory for component and writes the metadata record. It returns
// ErrEmptyBackup when none of the sources exist; the caller proceeds
// without rollback in that case.
func (m *Manager) Create(component, fromVersion string, sources []string) (string, error) {
	base := filepath.Join(m.baseDir,
		fmt.Sprintf("%s-%s", component, time.Now().UTC().Format("20060102-150405")))

	// Retries within the same second get a numeric suffix rather than
	// overwriting the earlier backup.
	dir := base

	for n := 2; ; n++ {
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			break
		}

		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create backup dir %s: %w", dir, err)
		}

		dir = fmt.Sprintf("%s.%d", base, n)
	}

	meta := Metadata{
		Component:   component,
		CreatedAt:   time.Now().UTC(),
		FromVersion: fromVersion,
		Files:       make(map[string]string),
	}

	for i, src := range sources {
		if src == "" {
			continue
		}

		info, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				log.Printf("Backup of %s: %s does not exist, skipping", component, src)
				continue
			}

			return "", fmt.Errorf("failed to stat %s: %w", src, err)
		}

		if info.IsDir() {
			log.Printf("Backup of %s: %s is a directory, skipping", component, src)
			continue
		}

		name := strconv.Itoa(i) + "-" + filepath.Base(src)
		if err := copyFile(src, filepath.Join(dir, name), info.Mode()); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", src, err)
		}

		meta.Files[src] = name
		meta.Items++
	}

	if meta.Items == 0 {
		// Leave no empty directories behind.
		os.RemoveAll(dir) //nolint:errcheck // best effort

		return "", ErrEmptyBackup
	}

	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, metadataFileName), data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup metadata: %w", err)
	}

	log.Printf("Backed up %d items for %s into %s", meta.Items, component, dir)

	return dir, nil
}

// Restore copies every file recorded in the backup's metadata back to its
// original location.
func (m *Manager) Restore(dir string) error {
	meta, err := ReadMetadata(dir)
	if err != nil {
		return err
	}

	for original, name := range meta.Files {
		src := filepath.Join(dir, name)

		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("backup item %s missing: %w", name, err)
		}

		if err := os.MkdirAll(filepath.Dir(original), 0o750); err != nil {
			return fmt.Errorf("failed to recreate parent of %s: %w", original, err)
		}

		if err := copyFile(src, original, info.Mode()); err != nil {
			return fmt.Errorf("failed to restore %s: %w", original, err)
		}
	}

	log.Printf("Restored %d items for %s from %s", meta.Items, meta.Component, dir)

	return nil
}

// ReadMetadata loads the metadata record of a backup directory.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoMetadata, dir, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoMetadata, dir, err)
	}

	return &meta, nil
}

// List returns metadata for every backup under the base directory, newest
// first.
func (m *Manager) List() ([]Metadata, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup dir: %w", err)
	}

	var metas []Metadata

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := ReadMetadata(filepath.Join(m.baseDir, entry.Name()))
		if err != nil {
			log.Printf("Skipping backup dir %s: %v", entry.Name(), err)
			continue
		}

		metas = append(metas, *meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// LatestFor returns the newest backup directory for component.
func (m *Manager) LatestFor(component string) (string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to read backup dir: %w", err)
	}

	var (
		newest    string
		newestAge time.Time
	)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(m.baseDir, entry.Name())

		meta, err := ReadMetadata(dir)
		if err != nil {
			continue
		}

		if meta.Component == component && meta.CreatedAt.After(newestAge) {
			newest = dir
			newestAge = meta.CreatedAt
		}
	}

	if newest == "" {
		return "", fmt.Errorf("%w: %s", ErrNoBackup, component)
	}

	return newest, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only file

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck,gosec // best effort before bailing
		return err
	}

	return out.Close()
}
