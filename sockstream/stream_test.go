//go:build linux || darwin

package sockstream_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/sockwire/handle"
	"github.com/momentics/sockwire/internal/sysnet"
	"github.com/momentics/sockwire/sockstream"
	"github.com/momentics/sockwire/transport"
)

func TestStreamOverTransport(t *testing.T) {
	a, b, err := sysnet.Pair()
	require.NoError(t, err)
	table := handle.NewTable(sysnet.Default)
	left := sockstream.New(transport.New(table.Wrap(a)))
	right := sockstream.New(transport.New(table.Wrap(b)))
	defer right.Close()

	go func() {
		for i := 0; i < 3; i++ {
			fmt.Fprintf(left, "line %d\n", i)
		}
		left.Close()
	}()

	for i := 0; i < 3; i++ {
		line, err := right.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("line %d", i), line)
	}
	_, err = right.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamCloseFlushes(t *testing.T) {
	a, b, err := sysnet.Pair()
	require.NoError(t, err)
	table := handle.NewTable(sysnet.Default)
	s := sockstream.NewSize(transport.New(table.Wrap(a)), 2, 16)
	peer := transport.New(table.Wrap(b))
	defer peer.Close()

	_, err = s.WriteString("tail")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	got, err := io.ReadAll(peer)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(got))
	assert.Equal(t, transport.Closed, s.Transport().State())
}
