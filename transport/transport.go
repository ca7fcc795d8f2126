// File: transport/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package transport implements blocking, exact-length byte transfer over
// a reference-counted channel Handle.
//
// A Transport moves in one direction through Unopened -> Open -> Closed.
// It closes on an explicit Close, on a zero-length transfer (the peer shut
// the connection down), or on an I/O error. Graceful peer close is
// reported as ok == false with a nil error so callers can tell "ended
// normally" from "failed". Everything attempted after that fails with
// api.ErrClosed.
//
// A single Transport tolerates one reader goroutine and one writer
// goroutine at a time. Close may be called from any goroutine; when it
// is the last holder of the channel it shuts the channel down so blocked
// calls return, which is best-effort across platforms.
package transport

import (
	"io"
	"net/netip"
	"sync"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/control"
	"github.com/momentics/sockwire/handle"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/internal/sysnet"
)

// State of a Transport.
type State int32

const (
	Unopened State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "invalid"
}

// Transport is the read/write side of one channel.
type Transport struct {
	h       *handle.Handle
	ops     sysnet.Ops
	metrics *control.MetricsRegistry

	local  netip.AddrPort
	remote netip.AddrPort

	mu       sync.Mutex
	state    State
	inflight int
	force    bool
	dropped  bool

	// peerEnded is set when the peer closed the channel and no local
	// Close has happened since; Read keeps reporting io.EOF.
	peerEnded bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithOps overrides the channel primitives, e.g. to cap transfer sizes.
func WithOps(ops sysnet.Ops) Option {
	return func(t *Transport) { t.ops = ops }
}

// WithMetrics records counters into m instead of the default registry.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(t *Transport) { t.metrics = m }
}

// New wraps h. The Transport takes over h's reference: closing the
// Transport releases it. An absent h yields an Unopened Transport.
func New(h *handle.Handle, opts ...Option) *Transport {
	if h == nil {
		h = new(handle.Handle)
	}
	t := &Transport{h: h, metrics: control.Metrics()}
	if h.Table() != nil {
		t.ops = h.Table().Ops()
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ops == nil {
		t.ops = sysnet.Default
	}
	if h.Good() {
		t.state = Open
		fd := h.FD()
		// AF_UNIX channels have no IP addresses; leave them zero.
		t.local, _ = t.ops.LocalAddr(fd)
		t.remote, _ = t.ops.PeerAddr(fd)
	}
	return t
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Good reports whether the Transport is Open and its channel present.
func (t *Transport) Good() bool {
	return t.State() == Open && t.h.Good()
}

// RawFD returns the channel descriptor, -1 when absent.
func (t *Transport) RawFD() int { return t.h.FD() }

// Handle exposes the underlying Handle.
func (t *Transport) Handle() *handle.Handle { return t.h }

// LocalAddr is the local address cached at connect/accept time.
func (t *Transport) LocalAddr() netip.AddrPort { return t.local }

// RemoteAddr is the peer address cached at connect/accept time.
func (t *Transport) RemoteAddr() netip.AddrPort { return t.remote }

// Clone returns a Transport sharing this channel, for example to keep it
// in a collection of active connections. Each clone must be closed.
func (t *Transport) Clone() *Transport {
	c := &Transport{
		h:       t.h.Clone(),
		ops:     t.ops,
		metrics: t.metrics,
		local:   t.local,
		remote:  t.remote,
	}
	if t.State() == Open && c.h.Good() {
		c.state = Open
	}
	return c
}

// Close moves the Transport to Closed and releases its reference to the
// channel. The channel itself closes once every holder has let go.
func (t *Transport) Close() error {
	return t.shut(false)
}

// ForceClose closes the channel for every holder at once. Use it for
// deliberate shutdown, for example to unblock a goroutine stuck in Recv
// on a shared channel. A clone that is already inside a syscall keeps
// using the raw descriptor number; once it is closed the kernel may hand
// that number to a new channel, so such a call can land on an unrelated
// socket. Stop the other holders before relying on it.
func (t *Transport) ForceClose() error {
	return t.shut(true)
}

func (t *Transport) shut(force bool) error {
	t.mu.Lock()
	t.peerEnded = false
	if t.dropped {
		t.mu.Unlock()
		return nil
	}
	t.state = Closed
	t.force = t.force || force
	if t.inflight > 0 {
		// The last in-flight call drops the handle on exit. Only shut the
		// channel down when this close is going to end it; otherwise the
		// other holders keep using it.
		if t.force || t.h.Refs() <= 1 {
			_ = t.ops.Shutdown(t.h.FD())
		}
		t.mu.Unlock()
		return nil
	}
	t.dropped = true
	t.mu.Unlock()
	return t.drop()
}

func (t *Transport) drop() error {
	if t.force {
		return t.h.Close()
	}
	return t.h.Release()
}

func closedError(op string, s State) error {
	return api.NewError(api.KindClosed, op, nil).WithContext("state", s.String())
}

// enter registers an in-flight call and returns the descriptor to use.
func (t *Transport) enter(op string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open || !t.h.Good() {
		return -1, closedError(op, t.state)
	}
	t.inflight++
	return t.h.FD(), nil
}

func (t *Transport) exit() {
	t.mu.Lock()
	t.inflight--
	drop := t.inflight == 0 && t.state == Closed && !t.dropped
	if drop {
		t.dropped = true
	}
	t.mu.Unlock()
	if drop {
		_ = t.drop()
	}
}

// closedLocally moves the Transport to Closed and reports whether it was
// already closed, or its channel was force-closed through another holder.
func (t *Transport) closedLocally() bool {
	t.mu.Lock()
	prev := t.state
	t.state = Closed
	t.mu.Unlock()
	return prev == Closed || !t.h.Good()
}

func (t *Transport) endedByPeer() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerEnded
}

// fail records an I/O error and closes the Transport. If a local Close
// raced with the call, the caller sees ErrClosed instead.
func (t *Transport) fail(op string, err error) error {
	if t.closedLocally() {
		return closedError(op, Closed)
	}
	t.metrics.Add(control.TransportFails, 1)
	logging.Logger().Component("transport").
		WithField("fd", t.h.FD()).WithError(err).Debug(op + " failed")
	return api.NewError(api.KindTransport, op, err)
}

// ended handles a zero-length transfer. It returns nil for a genuine
// peer close and ErrClosed when a local Close caused it.
func (t *Transport) ended(op string) error {
	if t.closedLocally() {
		return closedError(op, Closed)
	}
	t.mu.Lock()
	t.peerEnded = true
	t.mu.Unlock()
	t.metrics.Add(control.PeerCloses, 1)
	logging.Logger().Component("transport").
		WithField("fd", t.h.FD()).Debug(op + ": peer closed")
	return nil
}

// sendAll writes p completely. ok is false when the peer closed first.
func (t *Transport) sendAll(op string, p []byte) (n int, ok bool, err error) {
	fd, err := t.enter(op)
	if err != nil {
		return 0, false, err
	}
	defer t.exit()
	for n < len(p) {
		m, err := t.ops.Send(fd, p[n:])
		if err != nil {
			return n, false, t.fail(op, err)
		}
		if m == 0 {
			return n, false, t.ended(op)
		}
		t.metrics.Add(control.BytesSent, int64(m))
		n += m
	}
	return n, true, nil
}

// recvAll fills p completely. ok is false when the peer closed first.
func (t *Transport) recvAll(op string, p []byte) (n int, ok bool, err error) {
	fd, err := t.enter(op)
	if err != nil {
		return 0, false, err
	}
	defer t.exit()
	for n < len(p) {
		m, err := t.ops.Recv(fd, p[n:])
		if err != nil {
			return n, false, t.fail(op, err)
		}
		if m == 0 {
			return n, false, t.ended(op)
		}
		t.metrics.Add(control.BytesReceived, int64(m))
		n += m
	}
	return n, true, nil
}

// Send writes exactly len(p) bytes, retrying partial writes.
func (t *Transport) Send(p []byte) (bool, error) {
	_, ok, err := t.sendAll("transport.send", p)
	return ok, err
}

// Recv reads exactly len(p) bytes, retrying partial reads.
func (t *Transport) Recv(p []byte) (bool, error) {
	_, ok, err := t.recvAll("transport.recv", p)
	return ok, err
}

// Write implements io.Writer with Send semantics. A peer close reports
// io.ErrClosedPipe.
func (t *Transport) Write(p []byte) (int, error) {
	n, ok, err := t.sendAll("transport.write", p)
	if err == nil && !ok {
		err = io.ErrClosedPipe
	}
	return n, err
}

// Read implements io.Reader with a single receive. A peer close reports
// io.EOF, on this and every later Read until the Transport is closed
// locally.
func (t *Transport) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	fd, err := t.enter("transport.read")
	if err != nil {
		if t.endedByPeer() {
			return 0, io.EOF
		}
		return 0, err
	}
	defer t.exit()
	n, err := t.ops.Recv(fd, p)
	if err != nil {
		return 0, t.fail("transport.read", err)
	}
	if n == 0 {
		if err := t.ended("transport.read"); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	t.metrics.Add(control.BytesReceived, int64(n))
	return n, nil
}

var (
	_ api.Conn  = (*Transport)(nil)
	_ io.Reader = (*Transport)(nil)
	_ io.Writer = (*Transport)(nil)
)
