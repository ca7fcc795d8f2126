// Package resolver
// Author: momentics <momentics@gmail.com>
//
// Direct DNS resolution against one configured server with a TTL cache.

package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/patrickmn/go-cache"

	"github.com/momentics/sockwire/internal/logging"
)

// DNS resolves names by querying Server for A and AAAA records.
type DNS struct {
	server  string
	client  *dns.Client
	cache   *cache.Cache
	maxTTL  time.Duration
	timeout time.Duration
}

// DNSOptions configures a DNS resolver.
type DNSOptions struct {
	Server   string        // host:port of the DNS server
	Net      string        // "udp" (default) or "tcp"
	Timeout  time.Duration // per query
	CacheTTL time.Duration // upper bound on cached answers; 0 disables caching
}

// DefaultDNSOptions returns options for server with a 5s timeout and a
// one minute cache ceiling.
func DefaultDNSOptions(server string) DNSOptions {
	return DNSOptions{
		Server:   server,
		Net:      "udp",
		Timeout:  5 * time.Second,
		CacheTTL: time.Minute,
	}
}

// NewDNS creates a DNS resolver.
func NewDNS(opts DNSOptions) *DNS {
	d := &DNS{
		server:  opts.Server,
		client:  &dns.Client{Net: opts.Net, Timeout: opts.Timeout},
		maxTTL:  opts.CacheTTL,
		timeout: opts.Timeout,
	}
	if opts.CacheTTL > 0 {
		d.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return d
}

// LookupHost implements Resolver.
func (d *DNS) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, ok := literal(host); ok {
		return []netip.Addr{addr}, nil
	}
	if host == "localhost" {
		return []netip.Addr{netip.AddrFrom4([4]byte{127, 0, 0, 1}), netip.IPv6Loopback()}, nil
	}
	if d.cache != nil {
		if v, ok := d.cache.Get(host); ok {
			return v.([]netip.Addr), nil
		}
	}

	var (
		addrs []netip.Addr
		ttl   = d.maxTTL
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		got, minTTL, err := d.query(ctx, host, qtype)
		if err != nil {
			return nil, resolutionError(host, err)
		}
		addrs = append(addrs, got...)
		if len(got) > 0 && minTTL < ttl {
			ttl = minTTL
		}
	}
	if len(addrs) == 0 {
		return nil, resolutionError(host, fmt.Errorf("no A or AAAA records"))
	}

	if d.cache != nil && ttl > 0 {
		d.cache.Set(host, addrs, ttl)
	}
	logging.Logger().Component("resolver").WithFields(logging.LogFields{
		"host":  host,
		"addrs": len(addrs),
		"ttl":   ttl,
	}).Debug("resolved")
	return addrs, nil
}

func (d *DNS) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, time.Duration, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// SetQuestion initializes the message ID to a random value.
	req := &dns.Msg{MsgHdr: dns.MsgHdr{RecursionDesired: true}}
	req.SetQuestion(dns.Fqdn(host), qtype)

	resp, _, err := d.client.ExchangeContext(ctx, req, d.server)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", dns.TypeToString[qtype], err)
	}
	if resp.Id != req.Id {
		return nil, 0, dns.ErrId
	}

	// Some servers answer NXDOMAIN to AAAA queries for names that only
	// have A records; treat that as an empty AAAA answer.
	if resp.Rcode != dns.RcodeSuccess {
		if qtype == dns.TypeAAAA && resp.Rcode == dns.RcodeNameError {
			return nil, 0, nil
		}
		msg, ok := dns.RcodeToString[resp.Rcode]
		if !ok {
			msg = fmt.Sprintf("rcode %d", resp.Rcode)
		}
		return nil, 0, fmt.Errorf("query %s: %s", dns.TypeToString[qtype], msg)
	}

	var (
		addrs  []netip.Addr
		minTTL = time.Duration(-1)
	)
	for _, rr := range resp.Answer {
		var (
			ip  []byte
			ttl uint32
		)
		switch rr := rr.(type) {
		case *dns.A:
			ip, ttl = rr.A, rr.Hdr.Ttl
		case *dns.AAAA:
			ip, ttl = rr.AAAA, rr.Hdr.Ttl
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		addrs = append(addrs, addr.Unmap())
		if d := time.Duration(ttl) * time.Second; minTTL < 0 || d < minTTL {
			minTTL = d
		}
	}
	return addrs, minTTL, nil
}
