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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/appkiller/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for akctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "akctl",
		Short: "akctl - control the appkiller lifecycle coordinator",
		Long: `akctl talks to the appkiller coordinator over the session bus.

It can trigger the locale change, restore and RFS shutdown flows, report
whether the coordinator is running, and print the configuration and the
D-Bus activation file the coordinator is started from.

Run 'akctl status' to check the coordinator.
Run 'akctl trigger restore' to run the restore flow.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, json, yes, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(yes, "yes", "y", false, "Answer yes to confirmation prompts")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/appkiller/config.yaml)")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
