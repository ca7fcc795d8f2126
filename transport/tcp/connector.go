// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/control"
	"github.com/momentics/sockwire/handle"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/internal/sysnet"
	"github.com/momentics/sockwire/resolver"
	"github.com/momentics/sockwire/transport"
)

// Connector opens client connections. The zero value uses the platform
// resolver, the default handle table and the default metrics registry.
type Connector struct {
	Resolver resolver.Resolver
	Table    *handle.Table
	Metrics  *control.MetricsRegistry
	// Options are applied to every Transport the Connector returns.
	Options []transport.Option
}

func (c *Connector) resolver() resolver.Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return resolver.Default
}

func (c *Connector) table() *handle.Table {
	if c.Table != nil {
		return c.Table
	}
	return handle.DefaultTable()
}

func (c *Connector) metrics() *control.MetricsRegistry {
	if c.Metrics != nil {
		return c.Metrics
	}
	return control.Metrics()
}

// Connect resolves host, opens a channel of the matching family and makes
// exactly one connection attempt to port. IPv4 addresses are preferred.
// On failure no channel is left open.
//
// ctx bounds name resolution only; the connect call itself blocks until
// the kernel settles the attempt.
func (c *Connector) Connect(ctx context.Context, host string, port uint16) (*transport.Transport, error) {
	addrs, err := c.resolver().LookupHost(ctx, host)
	if err != nil {
		c.metrics().Add(control.ConnectFails, 1)
		return nil, err
	}
	ip, ok := resolver.Pick(addrs)
	if !ok {
		c.metrics().Add(control.ConnectFails, 1)
		return nil, api.NewError(api.KindResolution, "tcp.connect",
			fmt.Errorf("no address for %q", host)).WithContext("host", host)
	}
	return c.ConnectAddr(netip.AddrPortFrom(ip, port))
}

// ConnectAddr skips resolution and connects to addr directly.
func (c *Connector) ConnectAddr(addr netip.AddrPort) (*transport.Transport, error) {
	log := logging.Logger().Component("connector")
	table := c.table()

	h, err := table.Open(sysnet.FamilyOf(addr.Addr()))
	if err != nil {
		c.metrics().Add(control.ConnectFails, 1)
		return nil, err
	}
	if err := table.Ops().Connect(h.FD(), addr); err != nil {
		_ = h.Release()
		c.metrics().Add(control.ConnectFails, 1)
		log.WithField("addr", addr.String()).WithError(err).Debug("connect failed")
		return nil, api.NewError(api.KindConnect, "tcp.connect", err).
			WithContext("addr", addr.String())
	}

	opts := append([]transport.Option{transport.WithMetrics(c.metrics())}, c.Options...)
	t := transport.New(h, opts...)
	c.metrics().Add(control.Connects, 1)
	log.WithFields(logging.LogFields{
		"fd":     t.RawFD(),
		"local":  t.LocalAddr().String(),
		"remote": addr.String(),
	}).Debug("connected")
	return t, nil
}

// Connect uses a zero Connector.
func Connect(ctx context.Context, host string, port uint16) (*transport.Transport, error) {
	return new(Connector).Connect(ctx, host, port)
}
