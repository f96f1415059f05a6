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

package errors

import (
	"fmt"
	"time"
)

// TransportError represents a message that could not be handed to the bus.
// Use this for send failures, closed connections and remote error replies.
type TransportError struct {
	// Op names the bus operation (e.g., "emit", "call", "reply")
	Op string

	// Target identifies the peer or object involved (e.g., "com.nokia.tasknav")
	Target string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("bus %s failed", e.Op)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return "transport" }

// IsRetryable implements ErrorClassifier.
func (e *TransportError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *TransportError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *TransportError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *TransportError) Suggestion() string {
	return "Check that the session bus is running and DBUS_SESSION_BUS_ADDRESS is set"
}

// TimeoutError represents a synchronous bus call that received no reply
// within its bound.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "save state request")
	Operation string

	// Duration is the bound that was exceeded
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return false }

// ScriptError represents an external program that could not be started
// or exited with a non-zero status.
type ScriptError struct {
	// Script is the program path as configured
	Script string

	// ExitCode is the program's exit status, or -1 if it never ran
	ExitCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("script %s could not be run: %v", e.Script, e.Cause)
	}
	return fmt.Sprintf("script %s exited with status %d", e.Script, e.ExitCode)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ScriptError) ErrorType() string { return "script" }

// IsRetryable implements ErrorClassifier.
func (e *ScriptError) IsRetryable() bool { return false }

// RegistrationError represents a startup failure to claim a bus name or
// register an endpoint. It is always fatal.
type RegistrationError struct {
	// What is being registered (e.g., "endpoint /com/nokia/osso_app_killer/restore")
	What string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("could not register %s: %v", e.What, e.Cause)
	}
	return fmt.Sprintf("could not register %s", e.What)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *RegistrationError) ErrorType() string { return "registration" }

// IsRetryable implements ErrorClassifier.
func (e *RegistrationError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "save_state.timeout")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	return "Run 'akctl config show' to inspect the effective configuration"
}
