//go:build linux || darwin

package transport_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/control"
	"github.com/momentics/sockwire/handle"
	"github.com/momentics/sockwire/internal/sysnet"
	"github.com/momentics/sockwire/transport"
)

// pair returns two connected transports over a socketpair.
func pair(t *testing.T, opts ...transport.Option) (*transport.Transport, *transport.Transport) {
	t.Helper()
	a, b, err := sysnet.Pair()
	require.NoError(t, err)
	table := handle.NewTable(sysnet.Default)
	ta := transport.New(table.Wrap(a), opts...)
	tb := transport.New(table.Wrap(b), opts...)
	t.Cleanup(func() {
		ta.Close()
		tb.Close()
	})
	return ta, tb
}

func TestStateMachine(t *testing.T) {
	unopened := transport.New(nil)
	assert.Equal(t, transport.Unopened, unopened.State())
	assert.False(t, unopened.Good())
	assert.Equal(t, -1, unopened.RawFD())

	ok, err := unopened.Send([]byte{1})
	assert.False(t, ok)
	assert.ErrorIs(t, err, api.ErrClosed)

	a, _ := pair(t)
	assert.Equal(t, transport.Open, a.State())
	assert.True(t, a.Good())

	require.NoError(t, a.Close())
	assert.Equal(t, transport.Closed, a.State())
	assert.False(t, a.Good())
	require.NoError(t, a.Close(), "Close is idempotent")

	_, err = a.Recv(make([]byte, 1))
	assert.ErrorIs(t, err, api.ErrClosed)
}

func TestPartialTransfersRoundTrip(t *testing.T) {
	a, b := pair(t, transport.WithOps(sysnet.Limit(sysnet.Default, 1)))

	payload := []byte("partial transfers must be retried until complete")
	var g errgroup.Group
	g.Go(func() error {
		ok, err := a.Send(payload)
		if err == nil && !ok {
			err = io.ErrUnexpectedEOF
		}
		return err
	})

	got := make([]byte, len(payload))
	ok, err := b.Recv(got)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.Wait())
	assert.Equal(t, payload, got)
}

func TestStringRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 10000} {
		a, b := pair(t)
		s := strings.Repeat("x", n)

		var g errgroup.Group
		g.Go(func() error {
			_, err := a.SendString(s)
			return err
		})
		got, ok, err := b.RecvString()
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, g.Wait())
		assert.Equal(t, s, got, "length %d", n)
	}
}

func TestStringsAreDelimited(t *testing.T) {
	a, b := pair(t)
	for _, s := range []string{"first", "", "third"} {
		ok, err := a.SendString(s)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, want := range []string{"first", "", "third"} {
		got, ok, err := b.RecvString()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestEmbeddedNULRejected(t *testing.T) {
	a, _ := pair(t)
	ok, err := a.SendString("a\x00b")
	assert.False(t, ok)
	assert.ErrorIs(t, err, transport.ErrEmbeddedNUL)
	assert.True(t, a.Good(), "rejected string must not close the transport")
}

func TestValueRoundTrip(t *testing.T) {
	a, b := pair(t)

	ok, err := transport.SendValue(a, uint32(0x01020304))
	require.NoError(t, err)
	require.True(t, ok)
	v, ok, err := transport.RecvValue[uint32](b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x01020304), v)

	type point struct {
		X, Y int32
		On   bool
	}
	ok, err = transport.SendValue(a, point{X: -3, Y: 7, On: true})
	require.NoError(t, err)
	require.True(t, ok)
	p, ok, err := transport.RecvValue[point](b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, point{X: -3, Y: 7, On: true}, p)
	assert.Equal(t, 9, transport.SizeOf(p))
}

func TestValueMustBeFixedSize(t *testing.T) {
	a, _ := pair(t)
	_, err := transport.SendValue(a, []byte{1, 2})
	assert.ErrorIs(t, err, transport.ErrNotFixedSize)
	_, _, err = transport.RecvValue[string](a)
	assert.ErrorIs(t, err, transport.ErrNotFixedSize)
}

func TestBulkRoundTrip(t *testing.T) {
	a, b := pair(t)
	ok, err := transport.SendBulk(a, []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := transport.RecvBulk(b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
}

func TestBulkRejectsBadCount(t *testing.T) {
	a, b := pair(t)
	_, err := transport.SendValue(a, int64(-1))
	require.NoError(t, err)
	_, ok, err := transport.RecvBulk(b)
	assert.False(t, ok)
	assert.ErrorIs(t, err, api.ErrTransport)

	a, b = pair(t)
	_, err = transport.SendBulk(a, make([]byte, 100))
	require.NoError(t, err)
	_, ok, err = transport.RecvBulkLimit(b, 10)
	assert.False(t, ok)
	assert.ErrorIs(t, err, api.ErrTransport)
}

func TestBulkHugeCountFailsWithoutAllocating(t *testing.T) {
	a, b := pair(t)
	ok, err := transport.SendValue(a, int64(1)<<62)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = a.Send([]byte("short"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	var got []byte
	require.NotPanics(t, func() {
		got, ok, err = transport.RecvBulk(b)
	})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestBulkLargerThanOneChunk(t *testing.T) {
	a, b := pair(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 3<<16)

	var g errgroup.Group
	g.Go(func() error {
		_, err := transport.SendBulk(a, payload)
		return err
	})
	got, ok, err := transport.RecvBulk(b)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.Wait())
	assert.Equal(t, payload, got)
}

func TestReadKeepsReportingEOF(t *testing.T) {
	a, b := pair(t)
	require.NoError(t, b.Close())

	buf := make([]byte, 8)
	for i := 0; i < 3; i++ {
		n, err := a.Read(buf)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF, "read %d", i)
	}

	require.NoError(t, a.Close())
	_, err := a.Read(buf)
	assert.ErrorIs(t, err, api.ErrClosed, "local close wins over the earlier EOF")
}

func TestPeerCloseIsFalsyNotError(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	a, b := pair(t, transport.WithMetrics(metrics))
	require.NoError(t, b.Close())

	ok, err := a.Recv(make([]byte, 4))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, transport.Closed, a.State())
	assert.EqualValues(t, 1, metrics.Get(control.PeerCloses))

	// Everything after the close reports ErrClosed.
	_, err = a.Recv(make([]byte, 4))
	assert.ErrorIs(t, err, api.ErrClosed)
}

func TestForceClosedCloneIgnoresReusedDescriptor(t *testing.T) {
	a, _ := pair(t)
	clone := a.Clone()
	defer clone.Close()
	fd := a.RawFD()
	require.NoError(t, a.ForceClose())

	// A fresh channel is likely to get the same descriptor number.
	c, d := pair(t)
	if c.RawFD() != fd && d.RawFD() != fd {
		t.Logf("descriptor %d was not reused", fd)
	}

	ok, err := clone.Send([]byte("stray"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, api.ErrClosed)

	_, err = c.Send([]byte{1})
	require.NoError(t, err)
	got := make([]byte, 1)
	ok, err = d.Recv(got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, got, "the new channel saw only its own bytes")
}

func TestPeerCloseMidFrame(t *testing.T) {
	a, b := pair(t)
	_, err := a.Send([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	s, ok, err := b.RecvString()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "abc", s)

	c, d := pair(t)
	_, err = c.Send([]byte{1, 2})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	v, ok, err := transport.RecvValue[uint32](d)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestCloneKeepsChannelOpen(t *testing.T) {
	a, b := pair(t)
	c := a.Clone()
	require.NoError(t, a.Close())
	assert.True(t, c.Good())

	ok, err := c.SendString("still here")
	require.NoError(t, err)
	require.True(t, ok)
	got, _, err := b.RecvString()
	require.NoError(t, err)
	assert.Equal(t, "still here", got)
	require.NoError(t, c.Close())

	ok, err = b.Recv(make([]byte, 1))
	assert.NoError(t, err)
	assert.False(t, ok, "last holder gone means peer closed")
}

func TestForceCloseUnblocksRecv(t *testing.T) {
	a, _ := pair(t)
	c := a.Clone()

	done := make(chan error, 1)
	go func() {
		_, err := a.Recv(make([]byte, 1))
		done <- err
	}()
	require.NoError(t, c.ForceClose())
	err := <-done
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.False(t, a.Handle().Good())
}

func TestReaderWriter(t *testing.T) {
	a, b := pair(t)
	go func() {
		_, _ = io.Copy(a, strings.NewReader("copied through io.Copy"))
		a.Close()
	}()
	var buf bytes.Buffer
	_, err := io.Copy(&buf, b)
	require.NoError(t, err)
	assert.Equal(t, "copied through io.Copy", buf.String())
}

func TestByteCounters(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	a, b := pair(t, transport.WithMetrics(metrics))
	_, err := a.Send(make([]byte, 10))
	require.NoError(t, err)
	_, err = b.Recv(make([]byte, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 10, metrics.Get(control.BytesSent))
	assert.EqualValues(t, 10, metrics.Get(control.BytesReceived))
}
