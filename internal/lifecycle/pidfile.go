// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrPIDFileExists is returned when trying to create a PID file that already exists.
	ErrPIDFileExists = errors.New("PID file already exists")

	// ErrPIDFileLocked is returned when another process holds the PID file lock.
	ErrPIDFileLocked = errors.New("PID file is locked by another process")

	// ErrInvalidPID is returned when the PID file contains invalid data.
	ErrInvalidPID = errors.New("invalid PID in file")

	// ErrUnsafeDirectory is returned when the PID file parent is world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")

	// ErrAlreadyRunning is returned by Acquire when a live coordinator owns the file.
	ErrAlreadyRunning = errors.New("coordinator already running")
)

// PIDFile manages the coordinator's PID file with exclusive locking (flock)
// and atomic creation (O_EXCL).
type PIDFile struct {
	path     string
	lockFile *os.File

	// isLive decides whether a PID read from an existing file belongs to a
	// running coordinator. Tests replace it.
	isLive func(pid int) bool
}

// NewPIDFile creates a PID file manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{
		path:   path,
		isLive: IsCoordinatorProcess,
	}
}

// Path returns the file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire writes pid to the file. If a file already exists and its PID is
// not a live coordinator, the file is treated as stale, removed, and
// creation is retried once; the stale PID is returned. A live owner yields
// ErrAlreadyRunning.
func (p *PIDFile) Acquire(pid int) (stale int, err error) {
	err = p.create(pid)
	if !errors.Is(err, ErrPIDFileExists) {
		return 0, err
	}

	existing, readErr := p.Read()
	if readErr == nil && existing != pid && p.isLive(existing) {
		return 0, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, existing, p.path)
	}

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to remove stale PID file: %w", err)
	}
	return existing, p.create(pid)
}

// create writes pid with exclusive locking, creating the parent directory
// with restrictive permissions if needed.
func (p *PIDFile) create(pid int) error {
	parentDir := filepath.Dir(p.path)
	if err := verifyDirectorySafety(parentDir); err != nil {
		return fmt.Errorf("unsafe PID file location: %w", err)
	}
	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// O_EXCL refuses to follow a planted symlink; O_RDWR is needed for flock.
	f, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return ErrPIDFileExists
		}
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	fail := func(err error) error {
		f.Close()
		os.Remove(p.path)
		return err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if err == syscall.EWOULDBLOCK {
			return fail(ErrPIDFileLocked)
		}
		return fail(fmt.Errorf("failed to lock PID file: %w", err))
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		return fail(fmt.Errorf("failed to write PID: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync PID file: %w", err))
	}

	// The open descriptor holds the lock until Release.
	p.lockFile = f
	return nil
}

// Read reads the PID from the file.
// Returns ErrInvalidPID if the file contains non-numeric data.
func (p *PIDFile) Read() (int, error) {
	return ReadPID(p.path)
}

// ReadPID reads a PID file without taking ownership of it.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPID, pidStr)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}
	return pid, nil
}

// Release removes the file and drops the lock. It is safe to call twice.
func (p *PIDFile) Release() error {
	if p.lockFile == nil {
		return nil
	}
	syscall.Flock(int(p.lockFile.Fd()), syscall.LOCK_UN)
	p.lockFile.Close()
	p.lockFile = nil

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Held reports whether this manager currently owns the file.
func (p *PIDFile) Held() bool {
	return p.lockFile != nil
}

// verifyDirectorySafety rejects world-writable parents, where another user
// could swap the file for a symlink.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	mode := info.Mode()
	if mode&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}
	return nil
}
