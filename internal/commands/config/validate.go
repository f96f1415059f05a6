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

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/appkiller/internal/commands/shared"
	"github.com/tombee/appkiller/internal/config"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	shared.JSONResponse
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the scripts it names",
		Long: `Load the configuration the way the coordinator does and report problems.

Scripts that are missing or not executable are warnings: the coordinator
starts without them and reports a script failure when a flow needs one.
With --strict warnings fail validation too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := validate()
			if strict && len(res.Warnings) > 0 {
				res.Valid = false
			}
			res.JSONResponse = shared.NewJSONResponse("config validate", res.Valid)

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if err := shared.EmitJSONTo(out, res); err != nil {
					return err
				}
			} else {
				for _, e := range res.Errors {
					fmt.Fprintln(out, shared.RenderError(e))
				}
				for _, w := range res.Warnings {
					fmt.Fprintln(out, shared.RenderWarn(w))
				}
				if res.Valid {
					fmt.Fprintln(out, shared.RenderOK("configuration is valid"))
				}
			}

			if !res.Valid {
				return &shared.ExitError{Code: shared.ExitInvalidConfig, Message: "configuration is not valid"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func validate() ValidationResult {
	res := ValidationResult{Valid: true}

	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, err.Error())
		if cause := errors.Unwrap(err); cause != nil {
			res.Errors = append(res.Errors, cause.Error())
		}
		return res
	}

	for _, s := range []struct{ flow, path string }{
		{"locale", cfg.Scripts.Locale},
		{"restore", cfg.Scripts.Restore},
		{"rfs", cfg.Scripts.RFS},
	} {
		if w := checkScript(s.path); w != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s script %s", s.flow, w))
		}
	}
	return res
}

func checkScript(path string) string {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return path + " does not exist"
	case err != nil:
		return fmt.Sprintf("%s cannot be inspected: %v", path, err)
	case info.IsDir():
		return path + " is a directory"
	case info.Mode().Perm()&0o111 == 0:
		return path + " is not executable"
	}
	return ""
}
