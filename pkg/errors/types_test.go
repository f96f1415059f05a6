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

package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	akerrors "github.com/tombee/appkiller/pkg/errors"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection closed")

	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "transport with target",
			err:     &akerrors.TransportError{Op: "emit", Target: "/com/nokia/osso_app_killer", Cause: cause},
			wantMsg: "bus emit failed (/com/nokia/osso_app_killer): connection closed",
		},
		{
			name:    "transport without target or cause",
			err:     &akerrors.TransportError{Op: "reply"},
			wantMsg: "bus reply failed",
		},
		{
			name:    "timeout",
			err:     &akerrors.TimeoutError{Operation: "save state request", Duration: 5 * time.Second},
			wantMsg: "save state request timed out after 5s",
		},
		{
			name:    "script exit status",
			err:     &akerrors.ScriptError{Script: "/usr/sbin/rfs.sh", ExitCode: 3},
			wantMsg: "script /usr/sbin/rfs.sh exited with status 3",
		},
		{
			name:    "script never started",
			err:     &akerrors.ScriptError{Script: "/nope", ExitCode: -1, Cause: cause},
			wantMsg: "script /nope could not be run: connection closed",
		},
		{
			name:    "registration",
			err:     &akerrors.RegistrationError{What: "name com.example"},
			wantMsg: "could not register name com.example",
		},
		{
			name:    "config with key",
			err:     &akerrors.ConfigError{Key: "save_state.timeout", Reason: "must be positive"},
			wantMsg: "config error at save_state.timeout: must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestUnwrapChains(t *testing.T) {
	root := errors.New("root")
	wrapped := fmt.Errorf("outer: %w", &akerrors.TimeoutError{Operation: "call", Cause: root})

	if !errors.Is(wrapped, root) {
		t.Error("errors.Is should find root cause through TimeoutError")
	}

	var timeoutErr *akerrors.TimeoutError
	if !akerrors.As(wrapped, &timeoutErr) {
		t.Fatal("As should find *TimeoutError")
	}
	if timeoutErr.Operation != "call" {
		t.Errorf("Operation = %q, want call", timeoutErr.Operation)
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("plain"), "unknown"},
		{&akerrors.TransportError{Op: "emit"}, "transport"},
		{akerrors.Wrap(&akerrors.ScriptError{Script: "x", ExitCode: 1}, "restore"), "script"},
		{&akerrors.RegistrationError{What: "x"}, "registration"},
	}
	for _, tt := range tests {
		if got := akerrors.TypeOf(tt.err); got != tt.want {
			t.Errorf("TypeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if akerrors.Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if akerrors.Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestUserVisible(t *testing.T) {
	var uv akerrors.UserVisibleError = &akerrors.ConfigError{Reason: "bad"}
	if !uv.IsUserVisible() || uv.Suggestion() == "" {
		t.Error("ConfigError should be user visible with a suggestion")
	}
	uv = &akerrors.TransportError{Op: "call"}
	if uv.Suggestion() == "" {
		t.Error("TransportError should carry a suggestion")
	}
}
