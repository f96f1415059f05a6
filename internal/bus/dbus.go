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

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/tombee/appkiller/internal/log"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// inboxSize bounds endpoint messages read off the bus but not yet handed to
// their Handler.
const inboxSize = 64

// ErrLimitsExceeded answers calls that arrive while the inbox is full.
const ErrLimitsExceeded = "org.freedesktop.DBus.Error.LimitsExceeded"

// typeConsumed replaces the type of a message the interceptor took over, so
// godbus's reader skips it.
const typeConsumed dbus.Type = 0

// standardPrefix marks the bus's own interfaces (Peer, Introspectable,
// Properties), which godbus keeps answering on every path.
const standardPrefix = "org.freedesktop.DBus."

type endpoint struct {
	iface   string
	member  string
	handler Handler
}

type delivery struct {
	handler Handler
	req     *Request
}

// DBusConn implements Conn on top of godbus.
//
// An endpoint is an object path. An incoming interceptor takes every method
// call and unicast signal addressed to an exported path away from godbus,
// whatever its interface, member or body, and queues it in arrival order.
// godbus never answers these, so the Request's Replier owns the reply.
type DBusConn struct {
	conn   *dbus.Conn
	scope  Scope
	logger *slog.Logger

	mu       sync.RWMutex
	exported map[dbus.ObjectPath]endpoint

	inbox     chan delivery
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*DBusConn)(nil)

// Connect opens a private connection to the bus identified by scope.
// The session bus address is taken from DBUS_SESSION_BUS_ADDRESS.
func Connect(scope Scope, logger *slog.Logger) (*DBusConn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DBusConn{
		scope:    scope,
		logger:   logger.With(log.ScopeKey, string(scope)),
		exported: make(map[dbus.ObjectPath]endpoint),
		inbox:    make(chan delivery, inboxSize),
		events:   make(chan Event, 4),
		done:     make(chan struct{}),
	}

	opts := []dbus.ConnOption{dbus.WithIncomingInterceptor(c.intercept)}

	var (
		conn *dbus.Conn
		err  error
	)
	switch scope {
	case Session:
		conn, err = dbus.ConnectSessionBus(opts...)
	case System:
		conn, err = dbus.ConnectSystemBus(opts...)
	default:
		return nil, fmt.Errorf("unknown bus scope %q", scope)
	}
	if err != nil {
		return nil, &akerrors.TransportError{Op: "connect", Target: string(scope), Cause: err}
	}
	c.conn = conn

	go c.deliver()
	go c.watch()

	c.logger.Debug("bus connected", "unique_name", firstName(conn.Names()))
	return c, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Scope implements Conn.
func (c *DBusConn) Scope() Scope {
	return c.scope
}

// RequestName implements Conn.
func (c *DBusConn) RequestName(name string) error {
	reply, err := c.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return &akerrors.RegistrationError{What: "name " + name, Cause: err}
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return &akerrors.RegistrationError{
			What:  "name " + name,
			Cause: fmt.Errorf("not primary owner (reply %d)", reply),
		}
	}
	c.logger.Debug("bus name acquired", "name", name)
	return nil
}

// Export implements Conn. iface and member are the advertised method; any
// message routed to path reaches h.
func (c *DBusConn) Export(path, iface, member string, h Handler) error {
	op := dbus.ObjectPath(path)
	if !op.IsValid() {
		return &akerrors.RegistrationError{What: "endpoint " + path, Cause: errors.New("invalid object path")}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.exported[op]; dup {
		return &akerrors.RegistrationError{What: "endpoint " + path, Cause: errors.New("already exported")}
	}
	c.exported[op] = endpoint{iface: iface, member: member, handler: h}

	c.logger.Debug("endpoint exported", log.EndpointKey, path, "interface", iface, "member", member)
	return nil
}

// intercept runs on godbus's reader goroutine before it dispatches msg.
func (c *DBusConn) intercept(msg *dbus.Message) {
	if msg.Type != dbus.TypeMethodCall && msg.Type != dbus.TypeSignal {
		return
	}
	path, _ := msg.Headers[dbus.FieldPath].Value().(dbus.ObjectPath)

	c.mu.RLock()
	ep, ok := c.exported[path]
	c.mu.RUnlock()
	if !ok {
		return
	}

	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	sender, _ := msg.Headers[dbus.FieldSender].Value().(string)
	if strings.HasPrefix(iface, standardPrefix) {
		return
	}
	if msg.Type == dbus.TypeSignal {
		if dest, _ := msg.Headers[dbus.FieldDestination].Value().(string); dest == "" {
			return
		}
	}

	var r Replier
	if msg.Type == dbus.TypeMethodCall && msg.Flags&dbus.FlagNoReplyExpected == 0 {
		r = &dbusReplier{c: c, dest: sender, serial: msg.Serial()}
	}
	kind := "call"
	if msg.Type == dbus.TypeSignal {
		kind = "signal"
	}
	msg.Type = typeConsumed

	attrs := []slog.Attr{
		slog.String(log.EndpointKey, string(path)),
		slog.String("kind", kind),
		slog.String("interface", iface),
		slog.String("member", member),
		slog.String("sender", sender),
		slog.Uint64("serial", uint64(msg.Serial())),
	}

	select {
	case c.inbox <- delivery{handler: ep.handler, req: NewRequest(string(path), iface, member, sender, msg.Serial(), r)}:
		log.Trace(c.logger, "endpoint message queued", attrs...)
	default:
		c.logger.LogAttrs(context.Background(), slog.LevelWarn, "endpoint inbox full, message dropped", attrs...)
		if r != nil {
			go func() { _ = r.ReplyError(ErrLimitsExceeded) }()
		}
	}
}

// deliver hands intercepted messages to their Handler in arrival order.
func (c *DBusConn) deliver() {
	for {
		select {
		case <-c.done:
			return
		case d := <-c.inbox:
			d.handler(d.req)
		}
	}
}

// Emit implements Conn.
func (c *DBusConn) Emit(path, iface, member string, body ...interface{}) error {
	if !c.conn.Connected() {
		return &akerrors.TransportError{Op: "emit", Target: iface + "." + member, Cause: dbus.ErrClosed}
	}
	if err := c.conn.Emit(dbus.ObjectPath(path), iface+"."+member, body...); err != nil {
		return &akerrors.TransportError{Op: "emit", Target: iface + "." + member, Cause: err}
	}
	return nil
}

// Call implements Conn.
func (c *DBusConn) Call(ctx context.Context, dest, path, iface, method string) error {
	start := time.Now()
	call := c.conn.Object(dest, dbus.ObjectPath(path)).CallWithContext(ctx, iface+"."+method, 0)
	return classifyCallError(call.Err, dest+" "+iface+"."+method, time.Since(start))
}

// classifyCallError maps a godbus call error to the coordinator's error types.
func classifyCallError(err error, target string, elapsed time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || isNoReply(err) {
		return &akerrors.TimeoutError{Operation: "call " + target, Duration: elapsed.Round(time.Millisecond), Cause: err}
	}
	return &akerrors.TransportError{Op: "call", Target: target, Cause: err}
}

func isNoReply(err error) bool {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name == ErrNoReply
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name == ErrNoReply
	}
	return false
}

// Events implements Conn.
func (c *DBusConn) Events() <-chan Event {
	return c.events
}

// watch turns loss of the underlying connection into a Disconnected event.
func (c *DBusConn) watch() {
	select {
	case <-c.done:
		return
	case <-c.conn.Context().Done():
	}

	select {
	case <-c.done:
		return
	default:
	}

	c.logger.Debug("bus connection lost")
	select {
	case c.events <- DisconnectedEvent(c.scope):
	case <-c.done:
	}
}

// Close implements Conn.
func (c *DBusConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *DBusConn) send(msg *dbus.Message, op, dest string) error {
	if err := msg.IsValid(); err != nil {
		return &akerrors.TransportError{Op: op, Target: dest, Cause: err}
	}
	if !c.conn.Connected() {
		return &akerrors.TransportError{Op: op, Target: dest, Cause: dbus.ErrClosed}
	}
	call := c.conn.Send(msg, make(chan *dbus.Call, 1))
	if call != nil && call.Err != nil {
		return &akerrors.TransportError{Op: op, Target: dest, Cause: call.Err}
	}
	return nil
}

type dbusReplier struct {
	c      *DBusConn
	dest   string
	serial uint32
}

func (r *dbusReplier) ReplySuccess() error {
	return r.c.send(replyMessage(r.dest, r.serial), "reply", r.dest)
}

func (r *dbusReplier) ReplyError(name string, body ...interface{}) error {
	return r.c.send(errorMessage(r.dest, r.serial, name, body...), "error reply", r.dest)
}

// replyMessage builds an empty method return for the call (dest, serial).
func replyMessage(dest string, serial uint32) *dbus.Message {
	msg := &dbus.Message{
		Type:    dbus.TypeMethodReply,
		Headers: make(map[dbus.HeaderField]dbus.Variant),
	}
	if dest != "" {
		msg.Headers[dbus.FieldDestination] = dbus.MakeVariant(dest)
	}
	msg.Headers[dbus.FieldReplySerial] = dbus.MakeVariant(serial)
	return msg
}

// errorMessage builds an error reply for the call (dest, serial).
func errorMessage(dest string, serial uint32, name string, body ...interface{}) *dbus.Message {
	msg := replyMessage(dest, serial)
	msg.Type = dbus.TypeError
	msg.Headers[dbus.FieldErrorName] = dbus.MakeVariant(name)
	if len(body) > 0 {
		msg.Body = body
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(body...))
	}
	return msg
}
