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

// Package bus is the message-bus transport used by the coordinator.
//
// A Conn wraps one bus connection (session or system). Method calls and
// unicast signals addressed to an exported endpoint path are turned into
// Requests and handed to a
// Handler; the Handler never replies inline. Whoever owns the Request later
// decides whether to reply, with success or an error, through its Replier.
// Loss of a connection is reported as a synthesized Disconnected Event.
package bus

import (
	"context"

	"github.com/google/uuid"
)

// Scope identifies which bus a connection is attached to.
type Scope string

const (
	// Session is the per-user session bus.
	Session Scope = "session"
	// System is the machine-wide system bus.
	System Scope = "system"
)

// Local bus identity used for synthesized connection-state events.
const (
	LocalInterface     = "org.freedesktop.DBus.Local"
	LocalPath          = "/org/freedesktop/DBus/Local"
	MemberDisconnected = "Disconnected"
)

// ErrNoReply is the error name a bus uses when a call got no answer in time.
const ErrNoReply = "org.freedesktop.DBus.Error.NoReply"

// Replier sends the single reply owed to a caller. Implementations must
// tolerate being called after the connection dropped by returning an error.
type Replier interface {
	// ReplySuccess sends an empty method return.
	ReplySuccess() error

	// ReplyError sends an error reply with the given error name and body.
	ReplyError(name string, body ...interface{}) error
}

// Request is one inbound method call or signal on an exported endpoint.
type Request struct {
	// ID correlates log lines, spans and events for this request.
	ID string

	Path      string
	Interface string
	Member    string
	Sender    string
	Serial    uint32

	// Replier is nil for signals and for calls with no-reply-expected set.
	Replier Replier
}

// NewRequest builds a Request with a fresh correlation ID.
func NewRequest(path, iface, member, sender string, serial uint32, r Replier) *Request {
	return &Request{
		ID:        uuid.NewString(),
		Path:      path,
		Interface: iface,
		Member:    member,
		Sender:    sender,
		Serial:    serial,
		Replier:   r,
	}
}

// ExpectsReply reports whether the caller is waiting for an answer.
func (r *Request) ExpectsReply() bool {
	return r.Replier != nil
}

// Event is a connection-level notification delivered to the reactor.
type Event struct {
	Scope     Scope
	Path      string
	Interface string
	Member    string
}

// DisconnectedEvent returns the event synthesized when a bus connection is lost.
func DisconnectedEvent(scope Scope) Event {
	return Event{
		Scope:     scope,
		Path:      LocalPath,
		Interface: LocalInterface,
		Member:    MemberDisconnected,
	}
}

// IsDisconnect reports whether e signals loss of the connection.
func (e Event) IsDisconnect() bool {
	return e.Interface == LocalInterface && e.Member == MemberDisconnected
}

// Handler receives requests for an exported endpoint, one at a time and in
// arrival order. It must hand the request off without blocking long.
type Handler func(req *Request)

// Conn is a bus connection as seen by the coordinator.
type Conn interface {
	// Scope reports which bus this connection is on.
	Scope() Scope

	// RequestName claims a well-known name. It fails unless the connection
	// becomes the primary owner.
	RequestName(name string) error

	// Export routes every method call and unicast signal addressed to path
	// to h, whatever its interface, member or arguments. iface and member
	// name the advertised method.
	Export(path, iface, member string, h Handler) error

	// Emit broadcasts a signal.
	Emit(path, iface, member string, body ...interface{}) error

	// Call makes a blocking method call bounded by ctx. A deadline or a
	// no-reply error from the bus is reported as *errors.TimeoutError.
	Call(ctx context.Context, dest, path, iface, method string) error

	// Events delivers connection-state events. The channel is never closed
	// while the connection is in use.
	Events() <-chan Event

	// Close releases the connection. It does not produce a Disconnected event.
	Close() error
}
