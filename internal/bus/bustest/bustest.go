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

// Package bustest provides an in-memory bus.Conn for tests.
package bustest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/appkiller/internal/bus"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// Journal records operations from several fakes in one ordered list so tests
// can assert cross-component ordering.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Record appends an entry.
func (j *Journal) Record(format string, args ...interface{}) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// Signal is an emitted broadcast.
type Signal struct {
	Path      string
	Interface string
	Member    string
	Body      []interface{}
}

// Call is a recorded outgoing method call.
type Call struct {
	Dest      string
	Path      string
	Interface string
	Method    string
}

type export struct {
	iface   string
	member  string
	handler bus.Handler
}

// Conn is a fake bus connection. Zero knobs mean every operation succeeds.
type Conn struct {
	// RequestNameErr is returned by RequestName.
	RequestNameErr error
	// ExportErr is returned by Export.
	ExportErr error
	// EmitErr is returned by Emit.
	EmitErr error
	// CallErr is returned by Call once CallDelay has elapsed.
	CallErr error
	// CallDelay makes Call block; a ctx deadline firing first yields a TimeoutError.
	CallDelay time.Duration
	// Journal, when set, receives "emit", "call" and "reply" entries.
	Journal *Journal

	scope  bus.Scope
	events chan bus.Event

	mu      sync.Mutex
	names   []string
	exports map[string]export
	signals []Signal
	calls   []Call
	closed  bool
	serial  uint32
}

var _ bus.Conn = (*Conn)(nil)

// New returns a fake connection on the given scope.
func New(scope bus.Scope) *Conn {
	return &Conn{
		scope:   scope,
		events:  make(chan bus.Event, 8),
		exports: make(map[string]export),
	}
}

// Scope implements bus.Conn.
func (c *Conn) Scope() bus.Scope { return c.scope }

// RequestName implements bus.Conn.
func (c *Conn) RequestName(name string) error {
	if c.RequestNameErr != nil {
		return c.RequestNameErr
	}
	c.mu.Lock()
	c.names = append(c.names, name)
	c.mu.Unlock()
	return nil
}

// Export implements bus.Conn.
func (c *Conn) Export(path, iface, member string, h bus.Handler) error {
	if c.ExportErr != nil {
		return c.ExportErr
	}
	c.mu.Lock()
	c.exports[path] = export{iface: iface, member: member, handler: h}
	c.mu.Unlock()
	return nil
}

// Emit implements bus.Conn.
func (c *Conn) Emit(path, iface, member string, body ...interface{}) error {
	c.Journal.Record("emit %s.%s", iface, member)
	if c.EmitErr != nil {
		return c.EmitErr
	}
	c.mu.Lock()
	c.signals = append(c.signals, Signal{Path: path, Interface: iface, Member: member, Body: body})
	c.mu.Unlock()
	return nil
}

// Call implements bus.Conn.
func (c *Conn) Call(ctx context.Context, dest, path, iface, method string) error {
	c.Journal.Record("call %s.%s", iface, method)
	c.mu.Lock()
	c.calls = append(c.calls, Call{Dest: dest, Path: path, Interface: iface, Method: method})
	c.mu.Unlock()

	if c.CallDelay > 0 {
		start := time.Now()
		select {
		case <-ctx.Done():
			return &akerrors.TimeoutError{Operation: "call " + dest, Duration: time.Since(start), Cause: ctx.Err()}
		case <-time.After(c.CallDelay):
		}
	}
	return c.CallErr
}

// Events implements bus.Conn.
func (c *Conn) Events() <-chan bus.Event { return c.events }

// Close implements bus.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Disconnect injects a Disconnected event as if the bus went away.
func (c *Conn) Disconnect() {
	c.events <- bus.DisconnectedEvent(c.scope)
}

// Deliver simulates an inbound call to the endpoint exported at path. When
// expectReply is false the request carries no Replier. The returned Replier
// records whatever the handler's owner sends back.
func (c *Conn) Deliver(path string, expectReply bool) (*bus.Request, *Replier, error) {
	c.mu.Lock()
	ex, ok := c.exports[path]
	c.serial++
	serial := c.serial
	c.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("no endpoint exported at %s", path)
	}

	rec := &Replier{journal: c.Journal}
	var r bus.Replier
	if expectReply {
		r = rec
	}
	req := bus.NewRequest(path, ex.iface, ex.member, ":1.test", serial, r)
	ex.handler(req)
	return req, rec, nil
}

// DeliverSignal simulates a unicast signal (iface, member) sent to the
// endpoint exported at path. Signals never carry a Replier.
func (c *Conn) DeliverSignal(path, iface, member string) (*bus.Request, error) {
	c.mu.Lock()
	ex, ok := c.exports[path]
	c.serial++
	serial := c.serial
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no endpoint exported at %s", path)
	}

	req := bus.NewRequest(path, iface, member, ":1.test", serial, nil)
	ex.handler(req)
	return req, nil
}

// Names returns the bus names requested so far.
func (c *Conn) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

// Exported reports whether an endpoint is exported at path.
func (c *Conn) Exported(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.exports[path]
	return ok
}

// Signals returns emitted broadcasts.
func (c *Conn) Signals() []Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Signal(nil), c.signals...)
}

// Calls returns outgoing method calls.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ErrorReply is a recorded error reply.
type ErrorReply struct {
	Name string
	Body []interface{}
}

// Replier records replies. SuccessErr and ErrorErr make the corresponding
// send fail after it has been recorded.
type Replier struct {
	SuccessErr error
	ErrorErr   error

	journal *Journal

	mu        sync.Mutex
	successes int
	errors    []ErrorReply
}

// ReplySuccess implements bus.Replier.
func (r *Replier) ReplySuccess() error {
	r.journal.Record("reply success")
	r.mu.Lock()
	r.successes++
	r.mu.Unlock()
	return r.SuccessErr
}

// ReplyError implements bus.Replier.
func (r *Replier) ReplyError(name string, body ...interface{}) error {
	r.journal.Record("reply error %s", name)
	r.mu.Lock()
	r.errors = append(r.errors, ErrorReply{Name: name, Body: body})
	r.mu.Unlock()
	return r.ErrorErr
}

// Successes returns the number of success replies attempted.
func (r *Replier) Successes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes
}

// Errors returns the error replies attempted.
func (r *Replier) Errors() []ErrorReply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorReply(nil), r.errors...)
}

// Total returns the number of replies of any kind attempted.
func (r *Replier) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes + len(r.errors)
}
