// Package fake
// Author: momentics <momentics@gmail.com>
//
// In-memory stand-ins for sockwire interfaces, used by protocol tests
// that do not need a real channel.

package fake

import (
	"bytes"
	"sync"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/transport"
)

// Conn is an in-memory api.Conn. Recv consumes scripted input; running
// out of input behaves like a graceful peer close. Send appends to an
// output buffer the test can inspect.
type Conn struct {
	mu         sync.Mutex
	in         bytes.Buffer
	out        bytes.Buffer
	closed     bool
	sendError  error
	recvError  error
	closeError error
}

// NewConn returns a Conn whose peer will send input.
func NewConn(input []byte) *Conn {
	c := &Conn{}
	c.in.Write(input)
	return c
}

// Send implements api.Conn.
func (c *Conn) Send(p []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, api.NewError(api.KindClosed, "fake.send", nil)
	}
	if c.sendError != nil {
		c.closed = true
		return false, api.NewError(api.KindTransport, "fake.send", c.sendError)
	}
	c.out.Write(p)
	return true, nil
}

// Recv implements api.Conn. A short input yields ok == false.
func (c *Conn) Recv(p []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, api.NewError(api.KindClosed, "fake.recv", nil)
	}
	if c.recvError != nil {
		c.closed = true
		return false, api.NewError(api.KindTransport, "fake.recv", c.recvError)
	}
	if c.in.Len() < len(p) {
		c.in.Read(p)
		c.closed = true
		return false, nil
	}
	c.in.Read(p)
	return true, nil
}

// SendString implements api.Conn.
func (c *Conn) SendString(s string) (bool, error) {
	return transport.SendString(c, s)
}

// RecvString implements api.Conn.
func (c *Conn) RecvString() (string, bool, error) {
	return transport.RecvString(c)
}

// Close implements api.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeError != nil {
		return c.closeError
	}
	c.closed = true
	return nil
}

// RawFD implements api.Conn; a fake has no descriptor.
func (c *Conn) RawFD() int { return -1 }

// SetSendError makes the next Send fail with err.
func (c *Conn) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendError = err
}

// SetRecvError makes the next Recv fail with err.
func (c *Conn) SetRecvError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvError = err
}

// SetCloseError makes Close return err.
func (c *Conn) SetCloseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeError = err
}

// AddRecvData appends to the scripted input.
func (c *Conn) AddRecvData(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in.Write(data)
}

// Sent returns a copy of everything sent so far.
func (c *Conn) Sent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.out.Bytes())
}

// Closed reports whether the Conn has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ api.Conn = (*Conn)(nil)
