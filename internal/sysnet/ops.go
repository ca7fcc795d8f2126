// Package sysnet
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OS-level stream channel primitives. Every call is blocking and operates
// on a raw descriptor; the rest of sockwire only talks to the kernel
// through the Ops interface so tests can inject partial I/O.

package sysnet

import (
	"net/netip"
)

// Address families accepted by Ops.Socket.
const (
	FamilyIPv4 = 4
	FamilyIPv6 = 6
)

// Ops is the set of channel primitives used by handles, transports,
// connectors and listeners.
type Ops interface {
	// Socket allocates a new stream channel for the family.
	Socket(family int) (int, error)
	// Connect performs one blocking connection attempt.
	Connect(fd int, addr netip.AddrPort) error
	// SetReuseAddr enables SO_REUSEADDR.
	SetReuseAddr(fd int) error
	Bind(fd int, addr netip.AddrPort) error
	Listen(fd int, backlog int) error
	// Accept blocks until an inbound connection arrives.
	Accept(fd int) (int, error)
	// Send transfers up to len(p) bytes; it may transfer fewer.
	Send(fd int, p []byte) (int, error)
	// Recv receives up to len(p) bytes; 0 means the peer closed.
	Recv(fd int, p []byte) (int, error)
	// Shutdown disables both directions, waking blocked callers.
	Shutdown(fd int) error
	Close(fd int) error
	LocalAddr(fd int) (netip.AddrPort, error)
	PeerAddr(fd int) (netip.AddrPort, error)
}

// Default is the platform implementation.
var Default Ops = platformOps{}

// FamilyOf returns the socket family needed to reach addr.
func FamilyOf(addr netip.Addr) int {
	if addr.Unmap().Is4() {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// DefaultBacklog is the kernel's maximum pending-connection queue depth.
func DefaultBacklog() int {
	return somaxconn
}
