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

package coordinator

import (
	"context"

	"github.com/tombee/appkiller/internal/bus"
)

// Flow handles one request to completion and says what happens next.
type Flow interface {
	// Name is the flow's stable identifier for logs and metrics.
	Name() string

	// Handle runs the flow. It never returns before every step is done.
	Handle(ctx context.Context, req *bus.Request) Termination
}

// LocaleChangeFlow saves session state, asks applications to exit and runs
// the locale script. The coordinator always exits afterwards; the bus
// restarts it on demand.
type LocaleChangeFlow struct {
	p *Primitives
}

// NewLocaleChangeFlow creates the locale change flow.
func NewLocaleChangeFlow(p *Primitives) *LocaleChangeFlow {
	return &LocaleChangeFlow{p: p}
}

func (f *LocaleChangeFlow) Name() string { return EndpointLocale.String() }

func (f *LocaleChangeFlow) Handle(ctx context.Context, req *bus.Request) Termination {
	if err := f.p.RequestSaveState(ctx); err != nil {
		f.p.ReplyError(ctx, req, LocaleError, StepSaveState)
		return terminateGracefully("save state failed", err)
	}
	if err := f.p.BroadcastExit(ctx); err != nil {
		f.p.ReplyError(ctx, req, LocaleError, StepBroadcast)
		return terminateGracefully("exit broadcast failed", err)
	}
	// The script restarts the session; nobody is left to receive an error.
	if err := f.p.RunScript(ctx, EndpointLocale); err != nil {
		return terminateGracefully("locale script failed", err)
	}
	return terminateGracefully("locale change done", nil)
}

// RestoreFlow asks applications to exit and runs the restore script. The
// caller always gets exactly one reply and the coordinator keeps serving.
type RestoreFlow struct {
	p *Primitives
}

// NewRestoreFlow creates the restore flow.
func NewRestoreFlow(p *Primitives) *RestoreFlow {
	return &RestoreFlow{p: p}
}

func (f *RestoreFlow) Name() string { return EndpointRestore.String() }

func (f *RestoreFlow) Handle(ctx context.Context, req *bus.Request) Termination {
	if err := f.p.BroadcastExit(ctx); err != nil {
		f.p.ReplyError(ctx, req, RestoreError, StepBroadcast)
		return continueServing("exit broadcast failed", err)
	}
	if err := f.p.RunScript(ctx, EndpointRestore); err != nil {
		f.p.ReplyError(ctx, req, RestoreError, StepScript)
		return continueServing("restore script failed", err)
	}
	if err := f.p.ReplySuccess(ctx, req); err != nil {
		// Most likely fails the same way; a second failure is only logged.
		f.p.ReplyError(ctx, req, RestoreError, StepReply)
		return continueServing("success reply failed", err)
	}
	return continueServing("restore done", nil)
}

// RFSShutdownFlow asks applications to exit and runs the factory reset
// script. Only failures are reported to the caller; the coordinator always
// exits afterwards.
type RFSShutdownFlow struct {
	p *Primitives
}

// NewRFSShutdownFlow creates the RFS shutdown flow.
func NewRFSShutdownFlow(p *Primitives) *RFSShutdownFlow {
	return &RFSShutdownFlow{p: p}
}

func (f *RFSShutdownFlow) Name() string { return EndpointRFSShutdown.String() }

func (f *RFSShutdownFlow) Handle(ctx context.Context, req *bus.Request) Termination {
	if err := f.p.BroadcastExit(ctx); err != nil {
		f.p.ReplyError(ctx, req, RfsShutdownError, StepBroadcast)
		return terminateGracefully("exit broadcast failed", err)
	}
	if err := f.p.RunScript(ctx, EndpointRFSShutdown); err != nil {
		f.p.ReplyError(ctx, req, RfsShutdownError, StepScript)
		return terminateGracefully("rfs script failed", err)
	}
	return terminateGracefully("rfs shutdown done", nil)
}
