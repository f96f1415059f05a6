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

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	akerrors "github.com/tombee/appkiller/pkg/errors"
)

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want OperationOutcome
	}{
		{nil, Success},
		{&akerrors.TransportError{Op: "emit"}, TransportFailure},
		{errors.New("anything else"), TransportFailure},
		{&akerrors.TimeoutError{Operation: "call", Cause: context.DeadlineExceeded}, Timeout},
		{fmt.Errorf("wrapped: %w", &akerrors.TimeoutError{Operation: "call"}), Timeout},
		{&akerrors.ScriptError{Script: "x", ExitCode: 1}, ScriptFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutcomeOf(tt.err), "%v", tt.err)
	}
}

func TestTermination_ExitCode(t *testing.T) {
	assert.Equal(t, 0, continueServing("", nil).ExitCode())
	assert.Equal(t, 0, terminateGracefully("done", nil).ExitCode())
	assert.Equal(t, 1, terminateFatally("lost bus", nil).ExitCode())

	assert.False(t, continueServing("", nil).Terminates())
	assert.True(t, terminateGracefully("", nil).Terminates())
	assert.True(t, terminateFatally("", nil).Terminates())
}

func TestTermination_String(t *testing.T) {
	assert.Equal(t, "continue", continueServing("", nil).String())
	assert.Equal(t, "terminate_fatal: system bus disconnected", terminateFatally("system bus disconnected", nil).String())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "locale", EndpointLocale.String())
	assert.Equal(t, "rfs_shutdown", EndpointRFSShutdown.String())
	assert.Equal(t, "restore_error", RestoreError.String())
	assert.Equal(t, "timeout", Timeout.String())
	assert.Len(t, Endpoints, 3)
}
