package filexfer_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/fake"
	"github.com/momentics/sockwire/filexfer"
)

// upload builds what a sender puts on the wire for payload.
func upload(payload []byte) []byte {
	buf := binary.NativeEndian.AppendUint64(nil, uint64(len(payload)))
	return append(buf, payload...)
}

func ack(ok bool) []byte {
	if ok {
		return []byte{1}
	}
	return []byte{0}
}

func TestSendWireFormat(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10000)
	c := fake.NewConn(ack(true))
	bp := &fake.BytePool{}

	err := filexfer.Send(c, bytes.NewReader(payload), int64(len(payload)), filexfer.Options{Pool: bp})
	require.NoError(t, err)
	assert.Equal(t, upload(payload), c.Sent())
	assert.Zero(t, bp.Outstanding())
}

func TestSendRejected(t *testing.T) {
	c := fake.NewConn(ack(false))
	err := filexfer.Send(c, bytes.NewReader([]byte("x")), 1, filexfer.DefaultOptions())
	assert.ErrorIs(t, err, filexfer.ErrRejected)
}

func TestSendWithoutAck(t *testing.T) {
	c := fake.NewConn(nil)
	err := filexfer.Send(c, bytes.NewReader([]byte("x")), 1, filexfer.DefaultOptions())
	assert.ErrorIs(t, err, filexfer.ErrIncomplete)
}

func TestSendShortSource(t *testing.T) {
	c := fake.NewConn(ack(true))
	err := filexfer.Send(c, bytes.NewReader([]byte("ab")), 5, filexfer.DefaultOptions())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReceive(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	c := fake.NewConn(upload(payload))
	var got bytes.Buffer

	n, err := filexfer.Receive(c, &got, filexfer.DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, payload, got.Bytes())
	assert.Equal(t, ack(true), c.Sent())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestReceiveWriteFailureDrainsAndNacks(t *testing.T) {
	payload := bytes.Repeat([]byte{7}, 3*filexfer.ChunkSize+1)
	c := fake.NewConn(upload(payload))

	n, err := filexfer.Receive(c, failingWriter{}, filexfer.DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.EqualValues(t, len(payload), n, "payload is drained")
	assert.Equal(t, ack(false), c.Sent())
}

func TestReceiveLimit(t *testing.T) {
	c := fake.NewConn(upload(make([]byte, 100)))
	_, err := filexfer.Receive(c, io.Discard, filexfer.Options{Limit: 10})
	assert.ErrorIs(t, err, api.ErrTransport)
}

func TestReceiveTruncated(t *testing.T) {
	wire := upload([]byte("complete"))
	c := fake.NewConn(wire[:len(wire)-2])
	_, err := filexfer.Receive(c, io.Discard, filexfer.DefaultOptions())
	assert.ErrorIs(t, err, filexfer.ErrIncomplete)
	assert.Empty(t, c.Sent())
}

func TestReceiveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	payload := []byte("file contents")
	c := fake.NewConn(upload(payload))

	n, err := filexfer.ReceiveFile(c, path, filexfer.DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is gone")
}

func TestReceiveFileIntoMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.bin")
	c := fake.NewConn(upload([]byte("abc")))
	_, err := filexfer.ReceiveFile(c, path, filexfer.DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, ack(false), c.Sent())
}

func TestSendFileMissing(t *testing.T) {
	err := filexfer.SendFile(fake.NewConn(nil), filepath.Join(t.TempDir(), "nope"), filexfer.DefaultOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
