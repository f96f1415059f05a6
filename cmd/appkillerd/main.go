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

// Command appkillerd is the session lifecycle coordinator. It is normally
// started by bus activation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/daemon"
	"github.com/tombee/appkiller/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "Path to config file")
		logLevel    = pflag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
		logFormat   = pflag.String("log-format", "", "Log format (json, text)")
		showVersion = pflag.BoolP("version", "v", false, "Show version information")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("appkillerd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logCfg := log.FromEnv()
	if os.Getenv("LOG_FORMAT") == "" && term.IsTerminal(int(os.Stderr.Fd())) {
		logCfg.Format = log.FormatText
	}
	if *logLevel != "" {
		logCfg.Level = *logLevel
	}
	if *logFormat != "" {
		logCfg.Format = log.Format(*logFormat)
	}
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", log.Error(err))
		os.Exit(daemon.ExitStartupFailure)
	}

	os.Exit(daemon.Run(context.Background(), cfg, logger, daemon.Options{
		Version:    version,
		Commit:     commit,
		BuildDate:  buildDate,
		ConfigFile: *configPath,
	}))
}
