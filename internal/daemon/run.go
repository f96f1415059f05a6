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

package daemon

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/coordinator"
	"github.com/tombee/appkiller/internal/log"
)

// ExitStartupFailure is the status for any failure before the reactor runs.
const ExitStartupFailure = 1

// Run starts the daemon, serves until termination and returns the process
// exit status. SIGINT and SIGTERM end it gracefully between requests.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) int {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := New(ctx, cfg, logger, opts)
	if err != nil {
		logger.Error("failed to create daemon", log.Error(err))
		return ExitStartupFailure
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("startup failed", log.Error(err))
		_ = d.Events().LogTermination(ExitStartupFailure, err.Error())
		return ExitStartupFailure
	}

	term := d.Run(ctx)
	return finish(d, logger, term)
}

func finish(d *Daemon, logger *slog.Logger, term coordinator.Termination) int {
	code := term.ExitCode()

	if err := d.Shutdown(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", log.Error(err))
	}
	if err := d.Events().LogTermination(code, term.String()); err != nil {
		logger.Warn("could not write lifecycle event", log.Error(err))
	}

	attrs := []any{"termination", term.Kind.String(), "reason", term.Reason, "exit_code", code}
	if term.Err != nil {
		attrs = append(attrs, log.Error(term.Err))
	}
	if term.Kind == coordinator.TerminateFatally {
		logger.Error("appkillerd exiting", attrs...)
	} else {
		logger.Info("appkillerd exiting", attrs...)
	}
	return code
}
