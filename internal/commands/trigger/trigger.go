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

// Package trigger implements 'akctl trigger', which calls one of the
// coordinator's lifecycle endpoints.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tombee/appkiller/internal/client"
	"github.com/tombee/appkiller/internal/commands/shared"
	"github.com/tombee/appkiller/internal/config"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// exitAborted matches the shell's status for an interrupted prompt.
const exitAborted = 130

type triggerer interface {
	Trigger(ctx context.Context, t client.Target) (*client.Result, error)
	Close() error
}

var (
	newClient = func(cfg *config.Config, opts ...client.Option) (triggerer, error) {
		return client.New(cfg, opts...)
	}
	confirm          = confirmPrompt
	isNonInteractive = shared.IsNonInteractive
)

// Response is the JSON output of the trigger command.
type Response struct {
	shared.JSONResponse
	Endpoint   string `json:"endpoint"`
	Replied    bool   `json:"replied"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	ErrorName  string `json:"error_name,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`
}

// NewTriggerCommand creates the trigger command
func NewTriggerCommand() *cobra.Command {
	var (
		timeout time.Duration
		noWait  bool
	)

	cmd := &cobra.Command{
		Use:   "trigger <locale|restore|rfs>",
		Short: "Run a lifecycle flow in the coordinator",
		Long: `Call one of the coordinator's endpoints and report the answer.

  locale   save session state, ask applications to exit, run the locale script
  restore  ask applications to exit and run the restore script
  rfs      ask applications to exit and run the RFS shutdown script

The locale and rfs flows end the coordinator; the bus starts it again on
the next call. They ask for confirmation unless --yes is given.`,
		Example: `  akctl trigger restore
  akctl trigger rfs --yes
  akctl trigger restore --json --timeout 10s`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"locale", "restore", "rfs"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := client.ParseTarget(args[0])
			if err != nil {
				return &shared.ExitError{Code: shared.ExitFailed, Message: err.Error()}
			}
			var opts []client.Option
			opts = append(opts, client.WithTimeout(timeout))
			if noWait {
				opts = append(opts, client.WithNoWait())
			}
			return run(cmd, target, opts)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for a reply (0 waits indefinitely)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Send the request without waiting for a reply")

	return cmd
}

func run(cmd *cobra.Command, target client.Target, opts []client.Option) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	if target.Terminates() && !shared.GetYes() {
		if isNonInteractive() {
			return &shared.ExitError{
				Code:    shared.ExitFailed,
				Message: fmt.Sprintf("refusing to trigger %s without --yes in non-interactive mode", target),
			}
		}
		ok, err := confirm(target)
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return &shared.ExitError{Code: exitAborted, Message: "aborted"}
			}
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderWarn("cancelled"))
			return nil
		}
	}

	c, err := newClient(cfg, opts...)
	if err != nil {
		return shared.NewUnavailableError("cannot reach the session bus", err)
	}
	defer c.Close()

	res, callErr := c.Trigger(cmd.Context(), target)

	resp := Response{
		JSONResponse: shared.NewJSONResponse("trigger "+string(target), callErr == nil),
		Endpoint:     string(target),
	}
	if res != nil {
		resp.Replied = res.Replied
		resp.ElapsedMs = res.Elapsed.Milliseconds()
	}
	var remote *client.RemoteError
	if errors.As(callErr, &remote) {
		resp.ErrorName = remote.Name
		resp.FailedStep = remote.Step
	}

	if shared.GetJSON() {
		if err := shared.EmitJSONTo(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else if callErr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(describe(target, resp.Replied)))
		if shared.GetVerbose() {
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderKV("elapsed", fmt.Sprintf("%dms", resp.ElapsedMs)))
		}
	}

	return classify(target, callErr)
}

func describe(t client.Target, replied bool) string {
	switch {
	case replied:
		return fmt.Sprintf("%s finished", t)
	case t.Terminates():
		return fmt.Sprintf("%s accepted, coordinator exited", t)
	default:
		return fmt.Sprintf("%s sent", t)
	}
}

// classify maps a call error to an akctl exit status.
func classify(t client.Target, err error) error {
	if err == nil {
		return nil
	}
	var remote *client.RemoteError
	if errors.As(err, &remote) {
		return shared.NewErrorReplyError(fmt.Sprintf("%s failed", t), remote)
	}
	var transport *akerrors.TransportError
	if errors.As(err, &transport) {
		return shared.NewUnavailableError(fmt.Sprintf("could not call %s", t), err)
	}
	return shared.NewFailedError(fmt.Sprintf("%s did not complete", t), err)
}

func confirmPrompt(t client.Target) (bool, error) {
	var proceed bool
	desc := "Running applications will be asked to exit."
	if t == client.RFSShutdown {
		desc = "Running applications will be asked to exit and user settings will be restored to factory defaults."
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Trigger %s?", t)).
				Description(desc).
				Affirmative("Yes, trigger").
				Negative("No").
				Value(&proceed),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return proceed, nil
}
