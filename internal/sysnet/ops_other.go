//go:build !linux && !darwin
// +build !linux,!darwin

// Package sysnet
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without a raw-descriptor socket implementation.

package sysnet

import (
	"errors"
	"net/netip"
)

const somaxconn = 128

var errUnsupported = errors.New("sysnet: raw sockets not supported on this platform")

type platformOps struct{}

func (platformOps) Socket(int) (int, error)                    { return -1, errUnsupported }
func (platformOps) Connect(int, netip.AddrPort) error          { return errUnsupported }
func (platformOps) SetReuseAddr(int) error                     { return errUnsupported }
func (platformOps) Bind(int, netip.AddrPort) error             { return errUnsupported }
func (platformOps) Listen(int, int) error                      { return errUnsupported }
func (platformOps) Accept(int) (int, error)                    { return -1, errUnsupported }
func (platformOps) Send(int, []byte) (int, error)              { return 0, errUnsupported }
func (platformOps) Recv(int, []byte) (int, error)              { return 0, errUnsupported }
func (platformOps) Shutdown(int) error                         { return errUnsupported }
func (platformOps) Close(int) error                            { return errUnsupported }
func (platformOps) LocalAddr(int) (netip.AddrPort, error)      { return netip.AddrPort{}, errUnsupported }
func (platformOps) PeerAddr(int) (netip.AddrPort, error)       { return netip.AddrPort{}, errUnsupported }

// Pair returns two connected stream descriptors (socketpair).
func Pair() (int, int, error) { return -1, -1, errUnsupported }
