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
	"os"
	"strings"
	"syscall"
)

// processMarker is matched against a process command line to decide whether
// it is a coordinator.
const processMarker = "appkillerd"

// ProcessInfo contains information about a running process.
type ProcessInfo struct {
	PID         int
	Running     bool
	Command     string
	Coordinator bool
}

// IsProcessRunning checks if a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes for existence.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// IsCoordinatorProcess reports whether pid is a running appkillerd. A stale
// PID file may name a PID that was recycled by an unrelated process.
func IsCoordinatorProcess(pid int) bool {
	if !IsProcessRunning(pid) {
		return false
	}
	cmd, err := getProcessCommand(pid)
	if err != nil {
		return false
	}
	return strings.Contains(cmd, processMarker)
}

// GetProcessInfo returns information about the process with the given PID.
func GetProcessInfo(pid int) *ProcessInfo {
	info := &ProcessInfo{
		PID:     pid,
		Running: IsProcessRunning(pid),
	}
	if !info.Running {
		return info
	}

	cmd, err := getProcessCommand(pid)
	if err != nil {
		info.Command = "<unknown>"
		return info
	}
	info.Command = cmd
	info.Coordinator = strings.Contains(cmd, processMarker)
	return info
}
