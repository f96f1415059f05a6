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
	"log/slog"
	"time"

	"github.com/tombee/appkiller/internal/bus"
	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/log"
	"github.com/tombee/appkiller/internal/metrics"
	"github.com/tombee/appkiller/internal/script"
	"github.com/tombee/appkiller/internal/tracing"
	akerrors "github.com/tombee/appkiller/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Step names used in logs, spans, metrics and error reply bodies.
const (
	StepSaveState = "save_state"
	StepBroadcast = "broadcast"
	StepScript    = "script"
	StepReply     = "reply"
)

type loggerKey struct{}

func withLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// Primitives are the orchestration steps shared by the flows. All of them
// operate on the session connection.
type Primitives struct {
	conns  *Connections
	runner script.Runner
	cfg    *config.Config
	tracer trace.Tracer
	logger *slog.Logger
}

// NewPrimitives creates the primitives over conns. tracer may be nil.
func NewPrimitives(conns *Connections, runner script.Runner, cfg *config.Config, tracer trace.Tracer, logger *slog.Logger) *Primitives {
	if tracer == nil {
		tracer = tracing.NoopTracer()
	}
	return &Primitives{
		conns:  conns,
		runner: runner,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}
}

func (p *Primitives) log(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return p.logger
}

// BroadcastExit emits the exit signal asking cooperating applications to quit.
func (p *Primitives) BroadcastExit(ctx context.Context) error {
	ctx, span := tracing.StartStep(ctx, p.tracer, StepBroadcast)
	b := p.cfg.Broadcast

	err := p.conns.Session.Emit(b.Path, b.Interface, b.Member)
	tracing.End(span, err)

	logger := p.log(ctx).With(log.StepKey, StepBroadcast)
	if err != nil {
		metrics.RecordStepFailure(StepBroadcast, akerrors.TypeOf(err))
		logger.Error("could not send the exit signal", log.Error(err))
		return err
	}
	logger.Debug("exit signal sent", "signal", b.Interface+"."+b.Member)
	return nil
}

// RequestSaveState asks the task navigator to save session state and waits
// for its reply, at most save_state.timeout.
func (p *Primitives) RequestSaveState(ctx context.Context) error {
	ctx, span := tracing.StartStep(ctx, p.tracer, StepSaveState)
	s := p.cfg.SaveState

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	err := p.conns.Session.Call(callCtx, s.Service, s.Path, s.Interface, s.Method)
	elapsed := time.Since(start)
	metrics.ObserveSaveState(elapsed)
	tracing.End(span, err)

	logger := p.log(ctx).With(log.StepKey, StepSaveState, log.DurationKey, elapsed.Milliseconds())
	switch OutcomeOf(err) {
	case Success:
		logger.Debug("session state saved", "service", s.Service)
		return nil
	case Timeout:
		logger.Error("no reply to save request in time", "service", s.Service, "timeout", s.Timeout.String(), log.Error(err))
	default:
		logger.Error("error when sending save request", "service", s.Service, log.Error(err))
	}
	metrics.RecordStepFailure(StepSaveState, akerrors.TypeOf(err))
	return err
}

// RunScript runs the script configured for endpoint id and waits for it.
func (p *Primitives) RunScript(ctx context.Context, id Endpoint) error {
	ctx, span := tracing.StartStep(ctx, p.tracer, StepScript)
	path := p.scriptPath(id)
	span.SetAttributes(tracing.AttrFlow.String(id.String()))

	start := time.Now()
	err := p.runner.Run(ctx, path)
	elapsed := time.Since(start)
	metrics.ObserveScript(id.String(), elapsed)
	tracing.End(span, err)

	logger := p.log(ctx).With(log.StepKey, StepScript, "script", path, log.DurationKey, elapsed.Milliseconds())
	if err != nil {
		metrics.RecordStepFailure(StepScript, akerrors.TypeOf(err))
		logger.Error("script failed", log.Error(err))
		return err
	}
	logger.Info("script finished")
	return nil
}

func (p *Primitives) scriptPath(id Endpoint) string {
	switch id {
	case EndpointLocale:
		return p.cfg.Scripts.Locale
	case EndpointRestore:
		return p.cfg.Scripts.Restore
	default:
		return p.cfg.Scripts.RFS
	}
}

// ErrorName returns the configured error name for kind.
func (p *Primitives) ErrorName(kind ErrorKind) string {
	switch kind {
	case LocaleError:
		return p.cfg.Errors.Locale
	case RestoreError:
		return p.cfg.Errors.Restore
	default:
		return p.cfg.Errors.RFSShutdown
	}
}

// ReplySuccess sends an empty method return to the caller of req. Callers
// that asked for no reply are skipped.
func (p *Primitives) ReplySuccess(ctx context.Context, req *bus.Request) error {
	if !req.ExpectsReply() {
		p.log(ctx).Debug("caller expects no reply, success not sent")
		return nil
	}
	_, span := tracing.StartStep(ctx, p.tracer, StepReply)
	err := req.Replier.ReplySuccess()
	tracing.End(span, err)
	metrics.RecordReply("success", err)

	if err != nil {
		p.log(ctx).Error("could not send reply", log.StepKey, StepReply, log.Error(err))
		return err
	}
	p.log(ctx).Debug("success reply sent")
	return nil
}

// ReplyError sends the error reply for kind to the caller of req. The body
// names the step that failed.
func (p *Primitives) ReplyError(ctx context.Context, req *bus.Request, kind ErrorKind, failedStep string) error {
	if !req.ExpectsReply() {
		p.log(ctx).Debug("caller expects no reply, error not sent", "kind", kind.String())
		return nil
	}
	name := p.ErrorName(kind)

	_, span := tracing.StartStep(ctx, p.tracer, StepReply)
	span.SetAttributes(tracing.AttrOutcome.String(kind.String()))
	err := req.Replier.ReplyError(name, failedStep)
	tracing.End(span, err)
	metrics.RecordReply("error", err)

	if err != nil {
		p.log(ctx).Error("could not send error reply", log.StepKey, StepReply, "error_name", name, log.Error(err))
		return err
	}
	p.log(ctx).Info("error reply sent", "error_name", name, "failed_step", failedStep)
	return nil
}
