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

// Package status implements 'akctl status'.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tombee/appkiller/internal/client"
	"github.com/tombee/appkiller/internal/commands/shared"
	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/lifecycle"
)

type statuser interface {
	Status(ctx context.Context) (*client.Status, error)
	Close() error
}

var newClient = func(cfg *config.Config) (statuser, error) {
	return client.New(cfg)
}

// Response is the JSON output of the status command.
type Response struct {
	shared.JSONResponse
	Name        string   `json:"name"`
	Running     bool     `json:"running"`
	Owner       string   `json:"owner,omitempty"`
	Activatable bool     `json:"activatable"`
	Process     *Process `json:"process,omitempty"`
}

// Process describes the PID file owner, when a PID file is configured.
type Process struct {
	PIDFile     string `json:"pid_file"`
	PID         int    `json:"pid,omitempty"`
	Running     bool   `json:"running"`
	Command     string `json:"command,omitempty"`
	Coordinator bool   `json:"coordinator"`
	Error       string `json:"error,omitempty"`
}

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the coordinator is running",
		Long: `Ask the session bus whether the coordinator owns its name and whether
the bus can start it on demand. When a PID file is configured the process
recorded there is inspected as well.

Exits 0 when the coordinator is running or can be activated, 69 otherwise.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	c, err := newClient(cfg)
	if err != nil {
		return shared.NewUnavailableError("cannot reach the session bus", err)
	}
	defer c.Close()

	st, err := c.Status(cmd.Context())
	if err != nil {
		return shared.NewUnavailableError("status query failed", err)
	}

	resp := Response{
		JSONResponse: shared.NewJSONResponse("status", st.Running || st.Activatable),
		Name:         st.Name,
		Running:      st.Running,
		Owner:        st.Owner,
		Activatable:  st.Activatable,
		Process:      inspectPIDFile(cfg.Lifecycle.PIDFile),
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSONTo(out, resp); err != nil {
			return err
		}
	} else {
		render(out, resp)
	}

	if !resp.Success {
		return &shared.ExitError{Code: shared.ExitUnavailable, Message: fmt.Sprintf("%s is neither running nor activatable", st.Name)}
	}
	return nil
}

func inspectPIDFile(path string) *Process {
	if path == "" {
		return nil
	}
	p := &Process{PIDFile: path}
	pid, err := lifecycle.ReadPID(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.Error = err.Error()
		}
		return p
	}
	info := lifecycle.GetProcessInfo(pid)
	p.PID = info.PID
	p.Running = info.Running
	p.Command = info.Command
	p.Coordinator = info.Coordinator
	return p
}

func render(w io.Writer, r Response) {
	fmt.Fprintln(w, shared.Header.Render(r.Name))
	if r.Running {
		fmt.Fprintln(w, shared.RenderKV("bus name", shared.RenderStatus(true, "OWNED")+" by "+r.Owner))
	} else {
		fmt.Fprintln(w, shared.RenderKV("bus name", shared.RenderStatus(false, "NO OWNER")))
	}
	fmt.Fprintln(w, shared.RenderKV("activation", yesNo(r.Activatable)))

	if p := r.Process; p != nil {
		fmt.Fprintln(w, shared.RenderKV("pid file", p.PIDFile))
		switch {
		case p.Error != "":
			fmt.Fprintln(w, shared.RenderKV("process", shared.RenderWarn(p.Error)))
		case p.PID == 0:
			fmt.Fprintln(w, shared.RenderKV("process", shared.Muted.Render("none recorded")))
		case p.Running && p.Coordinator:
			fmt.Fprintln(w, shared.RenderKV("process", shared.RenderOK(strconv.Itoa(p.PID)+" "+p.Command)))
		case p.Running:
			fmt.Fprintln(w, shared.RenderKV("process", shared.RenderWarn(strconv.Itoa(p.PID)+" is not a coordinator ("+p.Command+")")))
		default:
			fmt.Fprintln(w, shared.RenderKV("process", shared.RenderWarn(strconv.Itoa(p.PID)+" is stale")))
		}
	}
}

func yesNo(b bool) string {
	if b {
		return shared.RenderOK("activatable")
	}
	return shared.RenderWarn("no activation file installed")
}
