package resolver_test

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/resolver"
)

const (
	exampleDomain = "example.sockwire.test"
	exampleIPv4   = "192.0.2.10"
	exampleIPv6   = "2001:db8::10"
)

type testDNSServer struct {
	addr         string
	requestCount atomic.Int32
	aaaaNXDomain atomic.Bool
	server       *dns.Server
}

func newTestDNSServer(t *testing.T) *testDNSServer {
	t.Helper()
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	s := &testDNSServer{addr: udpConn.LocalAddr().String()}
	started := make(chan struct{})
	s.server = &dns.Server{
		PacketConn:        udpConn,
		Handler:           s,
		NotifyStartedFunc: func() { close(started) },
	}
	go s.server.ActivateAndServe()
	<-started
	t.Cleanup(func() { s.server.Shutdown() })
	return s
}

func (s *testDNSServer) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	s.requestCount.Add(1)
	m := new(dns.Msg)
	m.SetReply(r)
	if len(r.Question) != 1 || r.Question[0].Name != dns.Fqdn(exampleDomain) {
		m.Rcode = dns.RcodeNameError
		w.WriteMsg(m)
		return
	}
	q := r.Question[0]
	hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: 60}
	switch q.Qtype {
	case dns.TypeA:
		m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: net.ParseIP(exampleIPv4)})
	case dns.TypeAAAA:
		if s.aaaaNXDomain.Load() {
			m.Rcode = dns.RcodeNameError
		} else {
			m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: net.ParseIP(exampleIPv6)})
		}
	}
	w.WriteMsg(m)
}

func TestDNSLookup(t *testing.T) {
	s := newTestDNSServer(t)
	r := resolver.NewDNS(resolver.DefaultDNSOptions(s.addr))

	addrs, err := r.LookupHost(context.Background(), exampleDomain)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr(exampleIPv4),
		netip.MustParseAddr(exampleIPv6),
	}, addrs)
	assert.EqualValues(t, 2, s.requestCount.Load())

	// Second lookup is served from the cache.
	_, err = r.LookupHost(context.Background(), exampleDomain)
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.requestCount.Load())

	ip, ok := resolver.Pick(addrs)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr(exampleIPv4), ip)
}

func TestDNSWithoutCache(t *testing.T) {
	s := newTestDNSServer(t)
	opts := resolver.DefaultDNSOptions(s.addr)
	opts.CacheTTL = 0
	r := resolver.NewDNS(opts)

	for i := 0; i < 2; i++ {
		_, err := r.LookupHost(context.Background(), exampleDomain)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, s.requestCount.Load())
}

func TestDNSAAAANameErrorTreatedAsEmpty(t *testing.T) {
	s := newTestDNSServer(t)
	s.aaaaNXDomain.Store(true)
	r := resolver.NewDNS(resolver.DefaultDNSOptions(s.addr))

	addrs, err := r.LookupHost(context.Background(), exampleDomain)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr(exampleIPv4)}, addrs)
}

func TestDNSUnknownName(t *testing.T) {
	s := newTestDNSServer(t)
	r := resolver.NewDNS(resolver.DefaultDNSOptions(s.addr))

	_, err := r.LookupHost(context.Background(), "missing.sockwire.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrResolution)
}

func TestDNSUnreachableServer(t *testing.T) {
	opts := resolver.DefaultDNSOptions("127.0.0.1:1")
	opts.Timeout = 200 * time.Millisecond
	r := resolver.NewDNS(opts)
	_, err := r.LookupHost(context.Background(), exampleDomain)
	assert.ErrorIs(t, err, api.ErrResolution)
}

func TestLiteralsAndLocalhostSkipTheNetwork(t *testing.T) {
	r := resolver.NewDNS(resolver.DefaultDNSOptions("127.0.0.1:1"))

	addrs, err := r.LookupHost(context.Background(), "10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.1.2.3")}, addrs)

	addrs, err = r.LookupHost(context.Background(), "localhost")
	require.NoError(t, err)
	ip, ok := resolver.Pick(addrs)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), ip)

	addrs, err = resolver.System{}.LookupHost(context.Background(), "::1")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.IPv6Loopback()}, addrs)
}

func TestPick(t *testing.T) {
	_, ok := resolver.Pick(nil)
	assert.False(t, ok)

	v6 := netip.MustParseAddr("2001:db8::1")
	ip, ok := resolver.Pick([]netip.Addr{v6})
	require.True(t, ok)
	assert.Equal(t, v6, ip)

	ip, ok = resolver.Pick([]netip.Addr{v6, netip.MustParseAddr("::ffff:192.0.2.1")})
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), ip)
}
