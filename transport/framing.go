// File: transport/framing.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Framed values on top of exact-length transfer:
//   - fixed-size values: binary.Size(v) bytes, native byte order, no prefix
//   - strings: content followed by a single 0x00
//   - bulk: int64 byte count (as a fixed-size value) followed by the bytes
//
// Fixed-size values are not normalized; both ends must share byte order
// and type layout. This is a closed two-endpoint protocol.

package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/momentics/sockwire/api"
)

// ErrEmbeddedNUL rejects strings that would be cut short on the wire.
var ErrEmbeddedNUL = errors.New("transport: string contains a zero byte")

// Bulk payloads up to bulkPrealloc are read in one transfer; larger ones
// arrive bulkChunk bytes at a time.
const (
	bulkPrealloc = 1 << 20
	bulkChunk    = 64 << 10
)

// ErrNotFixedSize rejects values without a fixed wire size.
var ErrNotFixedSize = errors.New("transport: value is not fixed-size")

// SendString writes s and a terminating zero byte in one transfer.
func (t *Transport) SendString(s string) (bool, error) {
	buf, err := encodeString(s)
	if err != nil {
		return false, err
	}
	return t.Send(buf)
}

// RecvString reads one byte at a time until a zero byte, which is not
// part of the result. Reading never runs past the terminator, so the
// next frame stays on the channel. On a peer close mid-string the bytes
// received so far are returned with ok == false.
func (t *Transport) RecvString() (string, bool, error) {
	return recvString(t)
}

func encodeString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, ErrEmbeddedNUL
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf, nil
}

func recvString(c api.Conn) (string, bool, error) {
	var (
		out []byte
		b   [1]byte
	)
	for {
		ok, err := c.Recv(b[:])
		if err != nil || !ok {
			return string(out), false, err
		}
		if b[0] == 0 {
			return string(out), true, nil
		}
		out = append(out, b[0])
	}
}

// SendString writes s over any Conn using the zero-terminated framing.
func SendString(c api.Conn, s string) (bool, error) {
	buf, err := encodeString(s)
	if err != nil {
		return false, err
	}
	return c.Send(buf)
}

// RecvString reads a zero-terminated string from any Conn.
func RecvString(c api.Conn) (string, bool, error) {
	return recvString(c)
}

// SizeOf returns the wire size of v, or -1 if v is not fixed-size.
func SizeOf(v any) int {
	return binary.Size(v)
}

// SendValue writes v as its raw fixed-size representation in native
// byte order. T must be a plain value: sized integers, floats, bool, or
// arrays and structs of those.
func SendValue[T any](c api.Conn, v T) (bool, error) {
	size := binary.Size(v)
	if size < 0 {
		return false, fmt.Errorf("%w: %T", ErrNotFixedSize, v)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, binary.NativeEndian, v); err != nil {
		return false, fmt.Errorf("encode %T: %w", v, err)
	}
	return c.Send(buf.Bytes())
}

// RecvValue reads a value written by SendValue. A peer close before the
// value is complete yields the zero value and ok == false.
func RecvValue[T any](c api.Conn) (T, bool, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		return v, false, fmt.Errorf("%w: %T", ErrNotFixedSize, v)
	}
	buf := make([]byte, size)
	ok, err := c.Recv(buf)
	if err != nil || !ok {
		return v, false, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.NativeEndian, &v); err != nil {
		return v, false, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, true, nil
}

// SendBulk writes len(p) as an int64 followed by p.
func SendBulk(c api.Conn, p []byte) (bool, error) {
	ok, err := SendValue(c, int64(len(p)))
	if err != nil || !ok {
		return ok, err
	}
	return c.Send(p)
}

// RecvBulk reads a byte count and then exactly that many bytes. Counts
// above bulkPrealloc are not allocated up front; RecvBulkLimit also caps
// them.
func RecvBulk(c api.Conn) ([]byte, bool, error) {
	return RecvBulkLimit(c, -1)
}

// RecvBulkLimit is RecvBulk with an upper bound on the announced count;
// limit < 0 disables the check.
func RecvBulkLimit(c api.Conn, limit int64) ([]byte, bool, error) {
	n, ok, err := RecvBulkHeader(c, limit)
	if err != nil || !ok {
		return nil, ok, err
	}
	if n <= bulkPrealloc {
		buf := make([]byte, n)
		ok, err = c.Recv(buf)
		if err != nil || !ok {
			return nil, ok, err
		}
		return buf, true, nil
	}
	// Large counts grow the buffer as bytes arrive, so a peer announcing
	// more than it sends runs into its own close instead of our memory.
	buf := make([]byte, 0, bulkPrealloc)
	for left := n; left > 0; {
		m := int64(bulkChunk)
		if left < m {
			m = left
		}
		buf = slices.Grow(buf, int(m))
		chunk := buf[len(buf) : len(buf)+int(m)]
		ok, err = c.Recv(chunk)
		if err != nil || !ok {
			return nil, ok, err
		}
		buf = buf[:len(buf)+int(m)]
		left -= m
	}
	return buf, true, nil
}

// RecvBulkHeader reads and validates only the byte count, for callers
// that stream the payload themselves.
func RecvBulkHeader(c api.Conn, limit int64) (int64, bool, error) {
	n, ok, err := RecvValue[int64](c)
	if err != nil || !ok {
		return 0, ok, err
	}
	if n < 0 || uint64(n) > math.MaxInt || (limit >= 0 && n > limit) {
		return 0, false, api.NewError(api.KindTransport, "transport.recv_bulk",
			fmt.Errorf("invalid byte count %d", n)).WithContext("limit", limit)
	}
	return n, true, nil
}
