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

// Package coordinator implements the lifecycle coordinator: the three
// endpoint flows, the primitives they share, the dispatcher that routes
// requests to them, the disconnect watchdog, and the reactor loop that
// serializes all of it.
package coordinator

import (
	"errors"
	"fmt"

	"github.com/tombee/appkiller/internal/bus"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// Endpoint identifies one of the three lifecycle endpoints.
type Endpoint int

const (
	EndpointLocale Endpoint = iota
	EndpointRestore
	EndpointRFSShutdown
)

// Endpoints lists every endpoint in registration order.
var Endpoints = []Endpoint{EndpointLocale, EndpointRestore, EndpointRFSShutdown}

func (e Endpoint) String() string {
	switch e {
	case EndpointLocale:
		return "locale"
	case EndpointRestore:
		return "restore"
	case EndpointRFSShutdown:
		return "rfs_shutdown"
	default:
		return fmt.Sprintf("endpoint(%d)", int(e))
	}
}

// ErrorKind selects the error name attached to an error reply.
type ErrorKind int

const (
	LocaleError ErrorKind = iota
	RestoreError
	RfsShutdownError
)

func (k ErrorKind) String() string {
	switch k {
	case LocaleError:
		return "locale_error"
	case RestoreError:
		return "restore_error"
	case RfsShutdownError:
		return "rfs_shutdown_error"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// OperationOutcome classifies the result of one primitive.
type OperationOutcome int

const (
	Success OperationOutcome = iota
	TransportFailure
	Timeout
	ScriptFailure
)

func (o OperationOutcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransportFailure:
		return "transport_failure"
	case Timeout:
		return "timeout"
	case ScriptFailure:
		return "script_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OutcomeOf classifies an error returned by a primitive.
func OutcomeOf(err error) OperationOutcome {
	if err == nil {
		return Success
	}
	var timeoutErr *akerrors.TimeoutError
	if errors.As(err, &timeoutErr) {
		return Timeout
	}
	var scriptErr *akerrors.ScriptError
	if errors.As(err, &scriptErr) {
		return ScriptFailure
	}
	return TransportFailure
}

// TerminationKind says what the reactor does after a flow.
type TerminationKind int

const (
	// Continue keeps serving requests.
	Continue TerminationKind = iota
	// TerminateGracefully ends the process with exit status 0.
	TerminateGracefully
	// TerminateFatally ends the process with exit status 1.
	TerminateFatally
)

func (k TerminationKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case TerminateGracefully:
		return "terminate_graceful"
	case TerminateFatally:
		return "terminate_fatal"
	default:
		return fmt.Sprintf("termination(%d)", int(k))
	}
}

// Termination is the terminal outcome of a flow or of the reactor.
type Termination struct {
	Kind   TerminationKind
	Reason string

	// Err is the failure that led here, if any.
	Err error
}

func continueServing(reason string, err error) Termination {
	return Termination{Kind: Continue, Reason: reason, Err: err}
}

func terminateGracefully(reason string, err error) Termination {
	return Termination{Kind: TerminateGracefully, Reason: reason, Err: err}
}

func terminateFatally(reason string, err error) Termination {
	return Termination{Kind: TerminateFatally, Reason: reason, Err: err}
}

// Terminates reports whether the process should end.
func (t Termination) Terminates() bool {
	return t.Kind != Continue
}

// ExitCode maps the termination to a process exit status.
func (t Termination) ExitCode() int {
	if t.Kind == TerminateFatally {
		return 1
	}
	return 0
}

func (t Termination) String() string {
	if t.Reason == "" {
		return t.Kind.String()
	}
	return t.Kind.String() + ": " + t.Reason
}

// Connections holds the session and system bus connections for the life of
// the process.
type Connections struct {
	Session bus.Conn
	System  bus.Conn
}

// NewConnections validates that both connections are present.
func NewConnections(session, system bus.Conn) (*Connections, error) {
	if session == nil {
		return nil, &akerrors.RegistrationError{What: "session bus connection", Cause: errors.New("not connected")}
	}
	if system == nil {
		return nil, &akerrors.RegistrationError{What: "system bus connection", Cause: errors.New("not connected")}
	}
	return &Connections{Session: session, System: system}, nil
}

// Close closes both connections.
func (c *Connections) Close() error {
	return errors.Join(c.Session.Close(), c.System.Close())
}
