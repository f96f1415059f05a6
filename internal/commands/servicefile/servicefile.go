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

// Package servicefile implements 'akctl service-file', which prints or
// installs the D-Bus activation file that lets the session bus start the
// coordinator on demand.
package servicefile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/appkiller/internal/commands/shared"
)

// DaemonName is the coordinator binary name.
const DaemonName = "appkillerd"

// Render returns the activation file for bus name running exec.
func Render(name, exec string) string {
	return fmt.Sprintf("[D-BUS Service]\nName=%s\nExec=%s\n", name, exec)
}

// ServicesDir returns the per-user activation directory
// ($XDG_DATA_HOME/dbus-1/services, default ~/.local/share/dbus-1/services).
func ServicesDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "dbus-1", "services"), nil
}

// defaultExec looks for the daemon next to the running akctl binary.
func defaultExec() string {
	self, err := os.Executable()
	if err != nil {
		return filepath.Join("/usr/bin", DaemonName)
	}
	return filepath.Join(filepath.Dir(self), DaemonName)
}

// NewServiceFileCommand creates the service-file command
func NewServiceFileCommand() *cobra.Command {
	var (
		exec    string
		install bool
	)

	cmd := &cobra.Command{
		Use:   "service-file",
		Short: "Print or install the D-Bus activation file",
		Long: `Print the session bus activation file for the coordinator.

The locale and RFS flows end the coordinator on purpose; the bus starts it
again on the next call through this file. With --install the file is
written to $XDG_DATA_HOME/dbus-1/services.`,
		Example: `  akctl service-file
  akctl service-file --exec /usr/libexec/appkillerd --install`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			if exec == "" {
				exec = defaultExec()
			}
			content := Render(cfg.Service.Name, exec)

			if !install {
				_, err := io.WriteString(cmd.OutOrStdout(), content)
				return err
			}

			dir, err := ServicesDir()
			if err != nil {
				return shared.NewFailedError("cannot determine services directory", err)
			}
			path, err := write(dir, cfg.Service.Name, content)
			if err != nil {
				return shared.NewFailedError("cannot install activation file", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("installed "+path))
			return nil
		},
	}

	cmd.Flags().StringVar(&exec, "exec", "", "Path to the appkillerd binary (default: next to akctl)")
	cmd.Flags().BoolVar(&install, "install", false, "Write the file to the per-user services directory")
	return cmd
}

func write(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".service")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}
