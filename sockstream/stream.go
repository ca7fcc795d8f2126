// Package sockstream
// Author: momentics <momentics@gmail.com>

package sockstream

import (
	"bufio"
	"io"

	"github.com/momentics/sockwire/transport"
)

// NewWriter returns a buffered writer over dst. Data reaches dst only on
// Flush or when the buffer fills.
func NewWriter(dst io.Writer, size int) *bufio.Writer {
	if size < 1 {
		size = DefaultSize
	}
	return bufio.NewWriterSize(dst, size)
}

// Stream bundles a Reader and a buffered writer over one Transport.
type Stream struct {
	*Reader
	W *bufio.Writer
	t *transport.Transport
}

// New wraps t with the default putback and buffer sizes.
func New(t *transport.Transport) *Stream {
	return NewSize(t, DefaultPutback, DefaultSize)
}

// NewSize wraps t with explicit sizes.
func NewSize(t *transport.Transport, putback, size int) *Stream {
	return &Stream{
		Reader: NewReader(t, putback, size),
		W:      NewWriter(t, size),
		t:      t,
	}
}

// Write buffers p.
func (s *Stream) Write(p []byte) (int, error) { return s.W.Write(p) }

// WriteString buffers str.
func (s *Stream) WriteString(str string) (int, error) { return s.W.WriteString(str) }

// Flush sends buffered output.
func (s *Stream) Flush() error { return s.W.Flush() }

// Transport returns the underlying Transport.
func (s *Stream) Transport() *transport.Transport { return s.t }

// Close flushes pending output and closes the Transport. The Transport
// is closed even when the flush fails.
func (s *Stream) Close() error {
	ferr := s.W.Flush()
	cerr := s.t.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

var _ io.ReadWriteCloser = (*Stream)(nil)
