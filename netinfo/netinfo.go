// Package netinfo
// Author: momentics <momentics@gmail.com>
//
// Local interface address lookup, used to bind listeners to a named
// network card and to report the address a server is reachable at.

package netinfo

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/momentics/sockwire/internal/sysnet"
)

// preferred is the lookup order used by Primary.
var preferred = []string{"eth0", "wlan0", "lo"}

// All maps each interface name to its first address of the given family
// (sysnet.FamilyIPv4 or sysnet.FamilyIPv6).
func All(family int) (map[string]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netinfo: interfaces: %w", err)
	}
	out := make(map[string]netip.Addr, len(ifaces))
	for _, ifi := range ifaces {
		if addr, ok := firstAddr(ifi, family); ok {
			out[ifi.Name] = addr
		}
	}
	return out, nil
}

// InterfaceAddr returns the first address of family on interface name.
func InterfaceAddr(name string, family int) (netip.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("netinfo: interface %q: %w", name, err)
	}
	addr, ok := firstAddr(*ifi, family)
	if !ok {
		return netip.Addr{}, fmt.Errorf("netinfo: interface %q has no IPv%d address", name, family)
	}
	return addr, nil
}

// Primary returns the host's address on eth0, wlan0 or lo, in that
// order, falling back to the first up, non-loopback interface.
func Primary(family int) (netip.Addr, bool) {
	all, err := All(family)
	if err != nil {
		return netip.Addr{}, false
	}
	for _, name := range preferred {
		if addr, ok := all[name]; ok {
			return addr, true
		}
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addr, ok := all[ifi.Name]; ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func firstAddr(ifi net.Interface, family int) (netip.Addr, bool) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if sysnet.FamilyOf(addr) == family {
			if addr.Is6() && addr.IsLinkLocalUnicast() {
				addr = addr.WithZone(ifi.Name)
			}
			return addr, true
		}
	}
	return netip.Addr{}, false
}
