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

// Package state pkg/state/lock.go - directory-based mutex guarding the
// session state file.
package state

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

const (
	defaultLockTimeout = 30 * time.Second
	lockPollInterval   = 1 * time.Second

	pidFileName = "pid"
)

// DirLock is a mutex whose held state is the existence of a directory.
// The pid file inside it identifies the holder for staleness detection;
// stale-lock cleanup is serialized through a flock'd sidecar file so only
// one waiter performs the removal.
type DirLock struct {
	dir         string
	cleanupLock *flock.Flock
	timeout     time.Duration
	held        bool
}

// NewDirLock creates a lock rooted at dir. The directory itself is the
// lock; dir must not be used for anything else.
func NewDirLock(dir string) *DirLock {
	return &DirLock{
		dir:         dir,
		cleanupLock: flock.New(dir + ".cleanup"),
		timeout:     defaultLockTimeout,
	}
}

// WithTimeout overrides the bounded lock wait.
func (l *DirLock) WithTimeout(d time.Duration) *DirLock {
	l.timeout = d
	return l
}

// Acquire blocks until the lock is held or the wait times out.
func (l *DirLock) Acquire() error {
	deadline := time.Now().Add(l.timeout)

	for {
		acquired, err := l.tryAcquire()
		if err != nil {
			return err
		}

		if acquired {
			l.held = true
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrLockTimeout, l.dir, l.timeout)
		}

		time.Sleep(lockPollInterval)
	}
}

func (l *DirLock) tryAcquire() (bool, error) {
	err := os.Mkdir(l.dir, 0o700)
	if err == nil {
		return l.claim()
	}

	if !os.IsExist(err) {
		return false, fmt.Errorf("failed to create lock dir: %w", err)
	}

	// Someone holds it. If the holder is gone, clean up and retry on the
	// next poll.
	if l.isStale() {
		l.cleanupStale()
	}

	return false, nil
}

// claim writes our pid and re-reads it to detect a race with a concurrent
// acquirer. Losing the race surrenders the attempt without touching the
// directory.
func (l *DirLock) claim() (bool, error) {
	pidPath := filepath.Join(l.dir, pidFileName)
	pid := strconv.Itoa(os.Getpid())

	if err := os.WriteFile(pidPath, []byte(pid), 0o600); err != nil {
		return false, fmt.Errorf("failed to write lock pid: %w", err)
	}

	read, err := os.ReadFile(pidPath)
	if err != nil || strings.TrimSpace(string(read)) != pid {
		log.Printf("Lost lock race on %s, retrying", l.dir)
		return false, nil
	}

	return true, nil
}

// isStale reports whether the recorded holder process no longer exists.
func (l *DirLock) isStale() bool {
	data, err := os.ReadFile(filepath.Join(l.dir, pidFileName))
	if err != nil {
		// A lock dir without a readable pid file may be mid-acquisition;
		// do not treat it as stale.
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}

	return !processAlive(pid)
}

// cleanupStale removes a stale lock under an exclusive advisory lock so
// two waiters cannot both assume ownership of the cleanup.
func (l *DirLock) cleanupStale() {
	locked, err := l.cleanupLock.TryLock()
	if err != nil || !locked {
		return
	}

	defer func() {
		if err := l.cleanupLock.Unlock(); err != nil {
			log.Printf("Failed to release cleanup lock: %v", err)
		}
	}()

	// Re-verify under the cleanup lock; another waiter may have already
	// removed and re-acquired it.
	if !l.isStale() {
		return
	}

	log.Printf("Removing stale lock %s", l.dir)

	if err := os.RemoveAll(l.dir); err != nil {
		log.Printf("Failed to remove stale lock: %v", err)
	}
}

// Release drops the lock.
func (l *DirLock) Release() error {
	if !l.held {
		return errLockNotHeld
	}

	l.held = false

	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("failed to remove lock dir: %w", err)
	}

	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else.
	return err == syscall.EPERM
}
