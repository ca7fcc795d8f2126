// Package sockstream
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffered text-stream adapter over a Transport. The reader keeps a
// small window of already consumed bytes so more than one byte can be
// pushed back; the writer is a plain bufio.Writer.

package sockstream

import (
	"bytes"
	"errors"
	"io"
)

// Default sizes used by New.
const (
	DefaultPutback = 4
	DefaultSize    = 1024
)

// ErrPutback is returned by UnreadByte when the putback window is
// exhausted.
var ErrPutback = errors.New("sockstream: putback window exhausted")

// Reader buffers an io.Reader. Layout of buf:
//
//	[0, putback)              history carried over from the last fill
//	[putback, putback+size)   bytes from the most recent read
//
// base marks the oldest byte UnreadByte may step back to.
type Reader struct {
	src     io.Reader
	buf     []byte
	putback int
	base    int
	pos     int
	end     int
	err     error
}

// NewReader returns a Reader over src allowing up to putback bytes of
// UnreadByte and reading at most size bytes per underlying call.
func NewReader(src io.Reader, putback, size int) *Reader {
	if putback < 1 {
		putback = 1
	}
	if size < 1 {
		size = DefaultSize
	}
	return &Reader{
		src:     src,
		buf:     make([]byte, putback+size),
		putback: putback,
		base:    putback,
		pos:     putback,
		end:     putback,
	}
}

// fill slides the putback window and performs exactly one read.
func (r *Reader) fill() error {
	if r.pos < r.end {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	keep := r.pos - r.base
	if keep > r.putback {
		keep = r.putback
	}
	copy(r.buf[r.putback-keep:r.putback], r.buf[r.pos-keep:r.pos])
	r.base = r.putback - keep
	r.pos = r.putback
	r.end = r.putback

	n, err := r.src.Read(r.buf[r.putback:])
	if n < 0 {
		n = 0
	}
	r.end += n
	if err != nil {
		r.err = err
	}
	switch {
	case n > 0:
		return nil
	case r.err != nil:
		return r.err
	}
	return io.ErrNoProgress
}

// Read copies buffered bytes into p, reading from the source only when
// the buffer is empty.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	n := copy(p, r.buf[r.pos:r.end])
	r.pos += n
	return n, nil
}

// ReadByte returns the next byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.fill(); err != nil {
		return 0, err
	}
	c := r.buf[r.pos]
	r.pos++
	return c, nil
}

// UnreadByte steps back one byte. Up to putback consecutive calls
// succeed after a refill; more are possible within one buffer.
func (r *Reader) UnreadByte() error {
	if r.pos <= r.base {
		return ErrPutback
	}
	r.pos--
	return nil
}

// ReadString reads through the first occurrence of delim and returns the
// data including delim. If the input ends first it returns what it has
// and the error (io.EOF at a clean end).
func (r *Reader) ReadString(delim byte) (string, error) {
	var out []byte
	for {
		if err := r.fill(); err != nil {
			return string(out), err
		}
		chunk := r.buf[r.pos:r.end]
		if i := bytes.IndexByte(chunk, delim); i >= 0 {
			out = append(out, chunk[:i+1]...)
			r.pos += i + 1
			return string(out), nil
		}
		out = append(out, chunk...)
		r.pos = r.end
	}
}

// ReadLine returns the next line without its "\n" or "\r\n". A final
// line without a terminator is returned with a nil error; the call after
// it reports io.EOF.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return line, nil
		}
		return line, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}
