// Package chatroom
// Author: momentics <momentics@gmail.com>

package chatroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/sockstream"
	"github.com/momentics/sockwire/transport"
	"github.com/momentics/sockwire/transport/tcp"
)

// ErrRefused means the server did not acknowledge the name.
var ErrRefused = errors.New("chatroom: server refused the session")

// ExitCommand ends an interactive session.
const ExitCommand = "exit"

// Client is one member's side of a session.
type Client struct {
	conn api.Conn
	name string
}

// Join sends name on c and waits for the acknowledgement.
func Join(c api.Conn, name string) (*Client, error) {
	ok, err := c.SendString(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRefused
	}
	ack, ok, err := transport.RecvValue[bool](c)
	if err != nil {
		return nil, err
	}
	if !ok || !ack {
		return nil, ErrRefused
	}
	return &Client{conn: c, name: name}, nil
}

// Name returns the name the client joined with.
func (cl *Client) Name() string { return cl.name }

// Say sends one message. ok is false once the server has gone away.
func (cl *Client) Say(msg string) (bool, error) {
	return cl.conn.SendString(msg)
}

// Next blocks for the next relayed line.
func (cl *Client) Next() (string, bool, error) {
	return cl.conn.RecvString()
}

// Close leaves the room.
func (cl *Client) Close() error {
	closeConn(cl.conn)
	return nil
}

// Run drives an interactive session: lines read from in are sent, lines
// relayed by the server are written to out. It returns when in ends, a
// line equal to ExitCommand is read, the server goes away or ctx is done.
func (cl *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() { _ = cl.Close() })
	defer stop()

	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		for {
			line, ok, err := cl.Next()
			if err != nil {
				if errors.Is(err, api.ErrClosed) {
					return nil
				}
				return err
			}
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		defer cl.Close()
		// Stdin reads cannot be interrupted, so the reader side is watched
		// from a separate goroutine that stops on exit of either half.
		lines := make(chan string)
		rerr := make(chan error, 1)
		go func() {
			r := sockstream.NewReader(in, sockstream.DefaultPutback, sockstream.DefaultSize)
			for {
				line, err := r.ReadLine()
				if err != nil {
					rerr <- err
					return
				}
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
		}()
		for {
			select {
			case <-done:
				return nil
			case err := <-rerr:
				if err == io.EOF {
					return nil
				}
				return err
			case line := <-lines:
				if strings.TrimSpace(line) == ExitCommand {
					return nil
				}
				ok, err := cl.Say(line)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

// Dial connects, retrying per policy, and joins as name. A refused
// session is not retried.
func Dial(ctx context.Context, conn *tcp.Connector, host string, port uint16, name string, policy tcp.RetryPolicy) (*Client, error) {
	t, err := tcp.DialRetry(ctx, conn, host, port, policy)
	if err != nil {
		return nil, err
	}
	cl, err := Join(t, name)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	logging.Logger().Component("chatroom").WithFields(logging.LogFields{
		"name":   name,
		"remote": t.RemoteAddr().String(),
	}).Debug("joined")
	return cl, nil
}
