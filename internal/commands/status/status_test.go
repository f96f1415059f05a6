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

package status

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/appkiller/internal/client"
	"github.com/tombee/appkiller/internal/commands/shared"
	"github.com/tombee/appkiller/internal/config"
)

type fakeStatuser struct {
	st *client.Status
}

func (f *fakeStatuser) Status(context.Context) (*client.Status, error) { return f.st, nil }
func (f *fakeStatuser) Close() error                                   { return nil }

func setup(t *testing.T, st *client.Status, json bool) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	shared.SetConfigPathForTest("")
	shared.SetFlagsForTest(json, false)

	orig := newClient
	newClient = func(*config.Config) (statuser, error) { return &fakeStatuser{st: st}, nil }
	t.Cleanup(func() {
		newClient = orig
		shared.SetFlagsForTest(false, false)
	})
}

func execute(t *testing.T) (string, error) {
	t.Helper()
	cmd := NewStatusCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(nil)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatus_Running(t *testing.T) {
	setup(t, &client.Status{Name: "com.nokia.osso_app_killer", Running: true, Owner: ":1.7"}, true)

	out, err := execute(t)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, ":1.7", resp.Owner)
	assert.Nil(t, resp.Process)
}

func TestStatus_Unavailable(t *testing.T) {
	setup(t, &client.Status{Name: "com.nokia.osso_app_killer"}, false)

	out, err := execute(t)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitUnavailable, exitErr.Code)
	assert.Contains(t, out, "no activation file installed")
}

func TestStatus_ActivatableIsEnough(t *testing.T) {
	setup(t, &client.Status{Name: "com.nokia.osso_app_killer", Activatable: true}, false)

	_, err := execute(t)
	assert.NoError(t, err)
}

func TestInspectPIDFile(t *testing.T) {
	assert.Nil(t, inspectPIDFile(""))

	dir := t.TempDir()
	missing := inspectPIDFile(filepath.Join(dir, "none.pid"))
	require.NotNil(t, missing)
	assert.Zero(t, missing.PID)
	assert.Empty(t, missing.Error)

	self := filepath.Join(dir, "self.pid")
	require.NoError(t, os.WriteFile(self, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))
	p := inspectPIDFile(self)
	assert.Equal(t, os.Getpid(), p.PID)
	assert.True(t, p.Running)
	assert.False(t, p.Coordinator, "the test binary is not a coordinator")
}
