// Package resolver
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hostname to address resolution used by the connector. The default
// System resolver defers to the platform (hosts file, nsswitch, DNS);
// DNS queries one explicit server directly.

package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/momentics/sockwire/api"
)

// Resolver maps a host name to candidate addresses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// System uses the platform resolver.
type System struct {
	Resolver *net.Resolver
}

// LookupHost implements Resolver.
func (s System) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, ok := literal(host); ok {
		return []netip.Addr{addr}, nil
	}
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, resolutionError(host, err)
	}
	if len(addrs) == 0 {
		return nil, resolutionError(host, fmt.Errorf("no addresses"))
	}
	return addrs, nil
}

// Default is the resolver used when a connector has none configured.
var Default Resolver = System{}

// Pick returns the preferred address: the first IPv4 address, otherwise
// the first address.
func Pick(addrs []netip.Addr) (netip.Addr, bool) {
	if len(addrs) == 0 {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap(), true
		}
	}
	return addrs[0], true
}

func literal(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

func resolutionError(host string, err error) error {
	return api.NewError(api.KindResolution, "resolver.lookup", err).WithContext("host", host)
}
