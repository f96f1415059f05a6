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

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/tombee/appkiller/internal/config"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// Target names a coordinator endpoint.
type Target string

const (
	Locale      Target = "locale"
	Restore     Target = "restore"
	RFSShutdown Target = "rfs"
)

// Targets lists every endpoint.
var Targets = []Target{Locale, Restore, RFSShutdown}

// ParseTarget accepts the endpoint names used on the command line.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "locale":
		return Locale, nil
	case "restore":
		return Restore, nil
	case "rfs", "rfs_shutdown", "rfs-shutdown":
		return RFSShutdown, nil
	}
	return "", fmt.Errorf("unknown endpoint %q (want locale, restore or rfs)", s)
}

// Terminates reports whether the coordinator exits after handling t.
func (t Target) Terminates() bool {
	return t != Restore
}

// Result describes how the coordinator answered a call.
type Result struct {
	Target  Target
	Replied bool
	Elapsed time.Duration
}

// RemoteError is a named error reply from the coordinator.
type RemoteError struct {
	Name string
	// Step is the orchestration step that failed, when the reply names one.
	Step string
}

func (e *RemoteError) Error() string {
	if e.Step == "" {
		return e.Name
	}
	return fmt.Sprintf("%s (failed step: %s)", e.Name, e.Step)
}

// Status reports the coordinator's presence on the bus.
type Status struct {
	Name        string
	Running     bool
	Owner       string
	Activatable bool
}

const (
	errNoReply        = "org.freedesktop.DBus.Error.NoReply"
	errServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	errNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
)

// caller is the slice of the bus the client needs.
type caller interface {
	call(ctx context.Context, flags dbus.Flags, dest, path, iface, method string) error
	nameOwner(ctx context.Context, name string) (string, error)
	activatable(ctx context.Context) ([]string, error)
	close() error
}

// Client talks to the coordinator.
type Client struct {
	bus     caller
	cfg     *config.Config
	timeout time.Duration
	noWait  bool
}

// Option configures a Client.
type Option func(*Client) error

// WithTimeout bounds every call. Zero means the context alone decides.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		c.timeout = d
		return nil
	}
}

// WithNoWait sends calls flagged as expecting no reply.
func WithNoWait() Option {
	return func(c *Client) error {
		c.noWait = true
		return nil
	}
}

// WithConn uses an existing bus connection. The client does not close it.
func WithConn(conn *dbus.Conn) Option {
	return func(c *Client) error {
		c.bus = &dbusCaller{conn: conn}
		return nil
	}
}

func withCaller(b caller) Option {
	return func(c *Client) error {
		c.bus = b
		return nil
	}
}

// New connects to the session bus unless WithConn is given.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Client{cfg: cfg, timeout: 30 * time.Second}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.bus == nil {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, &akerrors.TransportError{Op: "connect", Target: "session bus", Cause: err}
		}
		c.bus = &dbusCaller{conn: conn, owned: true}
	}
	return c, nil
}

// Close releases the bus connection if the client opened it.
func (c *Client) Close() error {
	return c.bus.close()
}

func (c *Client) endpoint(t Target) (config.EndpointConfig, error) {
	switch t {
	case Locale:
		return c.cfg.Endpoints.Locale, nil
	case Restore:
		return c.cfg.Endpoints.Restore, nil
	case RFSShutdown:
		return c.cfg.Endpoints.RFSShutdown, nil
	}
	return config.EndpointConfig{}, fmt.Errorf("unknown endpoint %q", t)
}

// Trigger calls endpoint t and interprets the answer.
func (c *Client) Trigger(ctx context.Context, t Target) (*Result, error) {
	ep, err := c.endpoint(t)
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var flags dbus.Flags
	if c.noWait {
		flags = dbus.FlagNoReplyExpected
	}

	start := time.Now()
	err = c.bus.call(ctx, flags, c.cfg.Service.Name, ep.Path, ep.Interface, ep.Method)
	res := &Result{Target: t, Elapsed: time.Since(start)}

	if err == nil {
		res.Replied = !c.noWait
		return res, nil
	}

	dbusErr, ok := asDBusError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			if t.Terminates() {
				return res, nil
			}
			return res, &akerrors.TimeoutError{Operation: "call " + string(t), Duration: res.Elapsed, Cause: err}
		}
		return res, &akerrors.TransportError{Op: "call", Target: ep.Path, Cause: err}
	}

	switch dbusErr.Name {
	case errNoReply:
		// The coordinator exits once locale and RFS flows finish.
		if t.Terminates() {
			return res, nil
		}
		return res, &akerrors.TimeoutError{Operation: "call " + string(t), Duration: res.Elapsed, Cause: dbusErr}
	case errServiceUnknown:
		return res, &akerrors.TransportError{Op: "call", Target: c.cfg.Service.Name, Cause: dbusErr}
	}

	res.Replied = true
	remote := &RemoteError{Name: dbusErr.Name}
	if len(dbusErr.Body) > 0 {
		if step, ok := dbusErr.Body[0].(string); ok {
			remote.Step = step
		}
	}
	return res, remote
}

// Status asks the bus daemon whether the coordinator owns its name and
// whether it can be started on demand.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	name := c.cfg.Service.Name
	st := &Status{Name: name}

	owner, err := c.bus.nameOwner(ctx, name)
	if err != nil {
		if dbusErr, ok := asDBusError(err); !ok || dbusErr.Name != errNameHasNoOwner {
			return nil, &akerrors.TransportError{Op: "GetNameOwner", Target: name, Cause: err}
		}
	}
	st.Owner = owner
	st.Running = owner != ""

	names, err := c.bus.activatable(ctx)
	if err != nil {
		return nil, &akerrors.TransportError{Op: "ListActivatableNames", Cause: err}
	}
	for _, n := range names {
		if n == name {
			st.Activatable = true
			break
		}
	}
	return st, nil
}

func asDBusError(err error) (dbus.Error, bool) {
	var value dbus.Error
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return dbus.Error{}, false
}

type dbusCaller struct {
	conn  *dbus.Conn
	owned bool
}

func (d *dbusCaller) call(ctx context.Context, flags dbus.Flags, dest, path, iface, method string) error {
	obj := d.conn.Object(dest, dbus.ObjectPath(path))
	return obj.CallWithContext(ctx, iface+"."+method, flags).Err
}

func (d *dbusCaller) nameOwner(ctx context.Context, name string) (string, error) {
	var owner string
	err := d.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

func (d *dbusCaller) activatable(ctx context.Context) ([]string, error) {
	var names []string
	err := d.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListActivatableNames", 0).Store(&names)
	return names, err
}

func (d *dbusCaller) close() error {
	if !d.owned {
		return nil
	}
	return d.conn.Close()
}
