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

// Package script runs the external programs invoked by lifecycle flows.
package script

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"

	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// maxOutputLog bounds how much script output is copied into the log.
const maxOutputLog = 4096

// Runner executes a script identified by its path.
type Runner interface {
	// Run executes path with argv = [path] and waits for it to exit.
	// A non-zero exit status or a failure to start is a *errors.ScriptError.
	Run(ctx context.Context, path string) error
}

// ExecRunner runs scripts on the local host. There is no timeout: a script
// runs as long as it needs unless ctx is cancelled.
type ExecRunner struct {
	Logger *slog.Logger
}

var _ Runner = ExecRunner{}

// NewExecRunner creates an ExecRunner that logs through logger.
func NewExecRunner(logger *slog.Logger) ExecRunner {
	return ExecRunner{Logger: logger}
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, path string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, path)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if output.Len() > 0 {
		logger.Debug("script output", "script", path, "output", tail(output.String(), maxOutputLog))
	}

	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
		}
		return &akerrors.ScriptError{Script: path, ExitCode: code, Cause: err}
	}

	return &akerrors.ScriptError{Script: path, ExitCode: -1, Cause: err}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, path string) error

// Run implements Runner.
func (f Func) Run(ctx context.Context, path string) error {
	return f(ctx, path)
}
