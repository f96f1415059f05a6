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

package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/appkiller/internal/client"
	"github.com/tombee/appkiller/internal/commands/shared"
	"github.com/tombee/appkiller/internal/config"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

type fakeClient struct {
	res    *client.Result
	err    error
	called []client.Target
	closed bool
}

func (f *fakeClient) Trigger(_ context.Context, t client.Target) (*client.Result, error) {
	f.called = append(f.called, t)
	if f.res == nil {
		return &client.Result{Target: t}, f.err
	}
	return f.res, f.err
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

// setup isolates config and replaces the client, prompt and TTY probes.
func setup(t *testing.T, fc *fakeClient, interactive bool, answer bool) *int {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	shared.SetConfigPathForTest("")
	shared.SetFlagsForTest(false, false)

	prompts := 0
	origNew, origConfirm, origNI := newClient, confirm, isNonInteractive
	newClient = func(*config.Config, ...client.Option) (triggerer, error) { return fc, nil }
	confirm = func(client.Target) (bool, error) {
		prompts++
		return answer, nil
	}
	isNonInteractive = func() bool { return !interactive }

	t.Cleanup(func() {
		newClient, confirm, isNonInteractive = origNew, origConfirm, origNI
		shared.SetConfigPathForTest("")
		shared.SetFlagsForTest(false, false)
	})
	return &prompts
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewTriggerCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func TestTrigger_RestoreSuccess(t *testing.T) {
	fc := &fakeClient{res: &client.Result{Target: client.Restore, Replied: true, Elapsed: 40 * time.Millisecond}}
	prompts := setup(t, fc, true, false)

	out, err := execute(t, "restore")

	require.NoError(t, err)
	assert.Equal(t, []client.Target{client.Restore}, fc.called)
	assert.Zero(t, *prompts, "restore never asks for confirmation")
	assert.Contains(t, out, "restore finished")
	assert.True(t, fc.closed)
}

func TestTrigger_ErrorReply(t *testing.T) {
	fc := &fakeClient{err: &client.RemoteError{Name: "com.nokia.osso_app_killer.error.restore", Step: "script"}}
	setup(t, fc, true, false)

	_, err := execute(t, "restore")

	assert.Equal(t, shared.ExitErrorReply, exitCode(t, err))
}

func TestTrigger_ErrorReplyJSON(t *testing.T) {
	fc := &fakeClient{err: &client.RemoteError{Name: "x.error.restore", Step: "broadcast"}}
	setup(t, fc, true, false)
	shared.SetFlagsForTest(true, false)

	out, err := execute(t, "restore")
	require.Error(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "x.error.restore", resp.ErrorName)
	assert.Equal(t, "broadcast", resp.FailedStep)
}

func TestTrigger_Unavailable(t *testing.T) {
	fc := &fakeClient{err: &akerrors.TransportError{Op: "call", Cause: errors.New("ServiceUnknown")}}
	setup(t, fc, true, false)

	_, err := execute(t, "restore")

	assert.Equal(t, shared.ExitUnavailable, exitCode(t, err))
}

func TestTrigger_TerminatingFlowsConfirm(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		fc := &fakeClient{}
		prompts := setup(t, fc, true, false)

		out, err := execute(t, "rfs")

		require.NoError(t, err)
		assert.Equal(t, 1, *prompts)
		assert.Empty(t, fc.called, "declined prompt must not call the coordinator")
		assert.Contains(t, out, "cancelled")
	})

	t.Run("accepted", func(t *testing.T) {
		fc := &fakeClient{}
		prompts := setup(t, fc, true, true)

		out, err := execute(t, "locale")

		require.NoError(t, err)
		assert.Equal(t, 1, *prompts)
		assert.Equal(t, []client.Target{client.Locale}, fc.called)
		assert.Contains(t, out, "coordinator exited")
	})

	t.Run("yes flag skips prompt", func(t *testing.T) {
		fc := &fakeClient{}
		prompts := setup(t, fc, true, false)
		shared.SetFlagsForTest(false, true)

		_, err := execute(t, "rfs")

		require.NoError(t, err)
		assert.Zero(t, *prompts)
		assert.Len(t, fc.called, 1)
	})

	t.Run("non-interactive requires yes", func(t *testing.T) {
		fc := &fakeClient{}
		setup(t, fc, false, true)

		_, err := execute(t, "locale")

		assert.Equal(t, shared.ExitFailed, exitCode(t, err))
		assert.Empty(t, fc.called)
	})
}

func TestTrigger_PromptAborted(t *testing.T) {
	fc := &fakeClient{}
	setup(t, fc, true, false)
	confirm = func(client.Target) (bool, error) { return false, huh.ErrUserAborted }

	_, err := execute(t, "rfs")

	assert.Equal(t, exitAborted, exitCode(t, err))
}

func TestTrigger_UnknownTarget(t *testing.T) {
	setup(t, &fakeClient{}, true, false)

	_, err := execute(t, "reboot")
	assert.Error(t, err)
}
