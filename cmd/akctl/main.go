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

// Command akctl triggers and inspects the lifecycle coordinator.
package main

import (
	"github.com/tombee/appkiller/internal/cli"
	"github.com/tombee/appkiller/internal/commands/config"
	"github.com/tombee/appkiller/internal/commands/servicefile"
	"github.com/tombee/appkiller/internal/commands/status"
	"github.com/tombee/appkiller/internal/commands/trigger"
	versioncmd "github.com/tombee/appkiller/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Coordinator commands
	rootCmd.AddCommand(trigger.NewTriggerCommand())
	rootCmd.AddCommand(status.NewStatusCommand())

	// Setup
	rootCmd.AddCommand(config.NewConfigCommand())
	rootCmd.AddCommand(servicefile.NewServiceFileCommand())

	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
