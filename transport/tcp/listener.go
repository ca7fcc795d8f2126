// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/control"
	"github.com/momentics/sockwire/handle"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/internal/sysnet"
	"github.com/momentics/sockwire/netinfo"
	"github.com/momentics/sockwire/transport"
)

// ListenConfig holds configuration for a listening channel.
type ListenConfig struct {
	// Address to bind. The zero value binds every IPv4 interface
	// (0.0.0.0) unless Interface is set.
	Address netip.Addr
	// Interface binds to the IPv4 address of the named network interface,
	// e.g. "eth0". Ignored when Address is valid.
	Interface string
	// Port 0 lets the kernel pick; Addr reports the result.
	Port uint16
	// Backlog <= 0 uses the kernel maximum.
	Backlog int
	// NoReuseAddr leaves SO_REUSEADDR unset.
	NoReuseAddr bool
	// MaxConns caps concurrently served connections in Serve; 0 is
	// unlimited.
	MaxConns int

	Table   *handle.Table
	Metrics *control.MetricsRegistry
	// Options are applied to every accepted Transport.
	Options []transport.Option
}

// Listener accepts inbound connections on one bound channel.
type Listener struct {
	h        *handle.Handle
	ops      sysnet.Ops
	table    *handle.Table
	metrics  *control.MetricsRegistry
	addr     netip.AddrPort
	maxConns int
	opts     []transport.Option

	mu       sync.Mutex
	closed   bool
	inflight int
	dropped  bool
}

func (cfg ListenConfig) bindAddr() (netip.AddrPort, error) {
	switch {
	case cfg.Address.IsValid():
		return netip.AddrPortFrom(cfg.Address, cfg.Port), nil
	case cfg.Interface != "":
		ip, err := netinfo.InterfaceAddr(cfg.Interface, sysnet.FamilyIPv4)
		if err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(ip, cfg.Port), nil
	}
	return netip.AddrPortFrom(netip.IPv4Unspecified(), cfg.Port), nil
}

// Listen opens, binds and listens. Every failure leaves no channel open.
func (cfg ListenConfig) Listen() (*Listener, error) {
	table := cfg.Table
	if table == nil {
		table = handle.DefaultTable()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = control.Metrics()
	}
	ops := table.Ops()

	addr, err := cfg.bindAddr()
	if err != nil {
		return nil, api.NewError(api.KindBind, "tcp.listen", err).
			WithContext("interface", cfg.Interface)
	}

	h, err := table.Open(sysnet.FamilyOf(addr.Addr()))
	if err != nil {
		return nil, err
	}
	fd := h.FD()

	if !cfg.NoReuseAddr {
		if err := ops.SetReuseAddr(fd); err != nil {
			_ = h.Release()
			return nil, api.NewError(api.KindBind, "tcp.listen", err).
				WithContext("addr", addr.String())
		}
	}
	if err := ops.Bind(fd, addr); err != nil {
		_ = h.Release()
		return nil, api.NewError(api.KindBind, "tcp.listen", err).
			WithContext("addr", addr.String())
	}

	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = sysnet.DefaultBacklog()
	}
	if err := ops.Listen(fd, backlog); err != nil {
		_ = h.Release()
		return nil, api.NewError(api.KindListen, "tcp.listen", err).
			WithContext("addr", addr.String()).WithContext("backlog", backlog)
	}

	if bound, err := ops.LocalAddr(fd); err == nil {
		addr = bound
	}
	logging.Logger().Component("listener").WithFields(logging.LogFields{
		"fd":      fd,
		"addr":    addr.String(),
		"backlog": backlog,
	}).Debug("listening")

	return &Listener{
		h:        h,
		ops:      ops,
		table:    table,
		metrics:  metrics,
		addr:     addr,
		maxConns: cfg.MaxConns,
		opts:     cfg.Options,
	}, nil
}

// Listen binds every IPv4 interface on port with SO_REUSEADDR.
func Listen(port uint16, backlog int) (*Listener, error) {
	return ListenConfig{Port: port, Backlog: backlog}.Listen()
}

// Addr returns the bound address; a requested port 0 is reported as the
// port the kernel picked.
func (l *Listener) Addr() netip.AddrPort { return l.addr }

// RawFD returns the listening descriptor, -1 after Close.
func (l *Listener) RawFD() int { return l.h.FD() }

// Accept blocks until a connection arrives and returns it on a fresh
// handle, independent of the listener and of other accepted connections.
func (l *Listener) Accept() (*transport.Transport, error) {
	fd, err := l.enter()
	if err != nil {
		return nil, err
	}
	nfd, err := l.ops.Accept(fd)
	closed := l.exit()
	if err != nil {
		if closed {
			return nil, api.NewError(api.KindClosed, "tcp.accept", err)
		}
		l.metrics.Add(control.AcceptFails, 1)
		return nil, api.NewError(api.KindAccept, "tcp.accept", err).
			WithContext("addr", l.addr.String())
	}

	opts := append([]transport.Option{transport.WithMetrics(l.metrics)}, l.opts...)
	t := transport.New(l.table.Wrap(nfd), opts...)
	l.metrics.Add(control.Accepts, 1)
	logging.Logger().Component("listener").WithFields(logging.LogFields{
		"fd":     nfd,
		"remote": t.RemoteAddr().String(),
	}).Debug("accepted")
	return t, nil
}

func (l *Listener) enter() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.h.Good() {
		return -1, api.NewError(api.KindClosed, "tcp.accept", nil)
	}
	l.inflight++
	return l.h.FD(), nil
}

// exit reports whether the listener was closed while the call ran.
func (l *Listener) exit() bool {
	l.mu.Lock()
	l.inflight--
	closed := l.closed
	drop := closed && l.inflight == 0 && !l.dropped
	if drop {
		l.dropped = true
	}
	l.mu.Unlock()
	if drop {
		_ = l.h.Close()
	}
	return closed
}

// Close stops accepting. A goroutine blocked in Accept is woken by
// shutting the channel down, which Linux honours for listening sockets;
// elsewhere it may stay blocked until the next connection arrives.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.inflight > 0 {
		_ = l.ops.Shutdown(l.h.FD())
		l.mu.Unlock()
		return nil
	}
	l.dropped = true
	l.mu.Unlock()
	logging.Logger().Component("listener").WithField("addr", l.addr.String()).Debug("closed")
	return l.h.Close()
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Handler serves one accepted connection. The Transport is closed when
// the handler returns.
type Handler func(ctx context.Context, t *transport.Transport)

// Serve accepts connections until ctx is done or the listener is closed,
// running handler on its own goroutine per connection. With MaxConns set,
// accepting pauses while that many handlers are running. Serve closes
// the listener and waits for running handlers before returning.
func (l *Listener) Serve(ctx context.Context, handler Handler) error {
	log := logging.Logger().Component("listener")

	var sem *semaphore.Weighted
	if l.maxConns > 0 {
		sem = semaphore.NewWeighted(int64(l.maxConns))
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	var backoff time.Duration
	for {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
		}
		t, err := l.Accept()
		if err != nil {
			if sem != nil {
				sem.Release(1)
			}
			if l.isClosed() {
				return ctx.Err()
			}
			// Transient accept failures (fd exhaustion and the like) are
			// retried with a capped backoff.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			log.WithError(err).WithField("retry_in", backoff).Warn("accept failed")
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		backoff = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			defer t.Close()
			defer func() {
				if r := recover(); r != nil {
					log.WithField("remote", t.RemoteAddr().String()).
						Error(fmt.Sprintf("panic in connection handler: %v", r))
				}
			}()
			handler(ctx, t)
		}()
	}
}
