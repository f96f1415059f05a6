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

package shared

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	akerrors "github.com/tombee/appkiller/pkg/errors"
)

func TestReport_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), ExitFailed},
		{"config", NewConfigError("bad config", nil), ExitInvalidConfig},
		{"error reply", NewErrorReplyError("restore failed", errors.New("x")), ExitErrorReply},
		{"wrapped unavailable", fmt.Errorf("outer: %w", NewUnavailableError("not running", nil)), ExitUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := report(&buf, tt.err); got != tt.want {
				t.Errorf("report() = %d, want %d", got, tt.want)
			}
			if !strings.Contains(buf.String(), tt.err.Error()) {
				t.Errorf("expected message in output, got %q", buf.String())
			}
		})
	}
}

func TestReport_PrintsSuggestion(t *testing.T) {
	var buf bytes.Buffer
	cause := &akerrors.TransportError{Op: "call", Cause: errors.New("no bus")}

	report(&buf, NewUnavailableError("coordinator unreachable", cause))

	if !strings.Contains(buf.String(), "Suggestion:") {
		t.Errorf("expected suggestion for transport error, got %q", buf.String())
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := NewFailedError("call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("ExitError should unwrap to its cause")
	}
	if err.Error() != "call failed: root" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestIsNonInteractive_Env(t *testing.T) {
	t.Setenv("AKCTL_NON_INTERACTIVE", "true")
	if !IsNonInteractive() {
		t.Error("AKCTL_NON_INTERACTIVE=true should force non-interactive mode")
	}

	t.Setenv("AKCTL_NON_INTERACTIVE", "")
	t.Setenv("CI", "1")
	if !IsNonInteractive() {
		t.Error("CI=1 should be treated as non-interactive")
	}
}

func TestEmitJSONTo(t *testing.T) {
	var buf bytes.Buffer
	if err := EmitJSONTo(&buf, NewJSONResponse("status", true)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"@version": "1.0"`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
}
