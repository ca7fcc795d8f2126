package sockstream_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/sockwire/sockstream"
)

// countingReader records how many reads reached the source.
type countingReader struct {
	r     io.Reader
	calls int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.calls++
	return c.r.Read(p)
}

func TestReadLine(t *testing.T) {
	r := sockstream.NewReader(strings.NewReader("one\r\ntwo\nthree"), 4, 8)
	for _, want := range []string{"one", "two", "three"} {
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err := r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadStringAcrossRefills(t *testing.T) {
	src := iotest.OneByteReader(strings.NewReader("hello world;rest"))
	r := sockstream.NewReader(src, 2, 4)
	s, err := r.ReadString(';')
	require.NoError(t, err)
	assert.Equal(t, "hello world;", s)

	s, err = r.ReadString(';')
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rest", s)
}

func TestUnreadUpToPutbackAfterRefill(t *testing.T) {
	r := sockstream.NewReader(iotest.OneByteReader(strings.NewReader("abcdef")), 3, 1)
	for _, want := range "abcd" {
		c, err := r.ReadByte()
		require.NoError(t, err)
		require.Equal(t, byte(want), c)
	}
	// The refill carried "abc" along; with "d" that is four steps back.
	for i := 0; i < 4; i++ {
		require.NoError(t, r.UnreadByte())
	}
	assert.ErrorIs(t, r.UnreadByte(), sockstream.ErrPutback)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(rest))
}

func TestUnreadAtStart(t *testing.T) {
	r := sockstream.NewReader(strings.NewReader("x"), 4, 16)
	assert.ErrorIs(t, r.UnreadByte(), sockstream.ErrPutback)
}

func TestOneSourceReadPerUnderflow(t *testing.T) {
	src := &countingReader{r: strings.NewReader(strings.Repeat("z", 10))}
	r := sockstream.NewReader(src, 4, 4)

	buf := make([]byte, 10)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "a read returns at most one buffer")
	assert.Equal(t, 1, src.calls)

	_, err = r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSourceErrorIsSticky(t *testing.T) {
	boom := io.ErrUnexpectedEOF
	r := sockstream.NewReader(iotest.ErrReader(boom), 4, 4)
	_, err := r.ReadByte()
	assert.ErrorIs(t, err, boom)
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, boom)
}

func TestWriterBuffersUntilFlush(t *testing.T) {
	var dst bytes.Buffer
	w := sockstream.NewWriter(&dst, 64)
	_, err := w.WriteString("buffered")
	require.NoError(t, err)
	assert.Zero(t, dst.Len())
	require.NoError(t, w.Flush())
	assert.Equal(t, "buffered", dst.String())
}
