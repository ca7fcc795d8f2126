// Package filexfer
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One-shot upload protocol. The sender announces the payload size as an
// int64, streams exactly that many bytes and waits for a one-byte
// boolean acknowledgement: true once the receiver has stored everything,
// false when it could not.

package filexfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/pool"
	"github.com/momentics/sockwire/transport"
)

// DefaultPort is the port used when none is given.
const DefaultPort = 20050

// ChunkSize bounds a single transfer while streaming.
const ChunkSize = 32 << 10

var (
	// ErrRejected means the receiver answered with a negative
	// acknowledgement.
	ErrRejected = errors.New("filexfer: receiver rejected the upload")
	// ErrIncomplete means the peer closed before the exchange finished.
	ErrIncomplete = errors.New("filexfer: connection closed mid-transfer")
)

// Options tune a transfer.
type Options struct {
	// Pool supplies chunk buffers; nil uses pool.Default().
	Pool api.BytePool
	// Limit caps the size a receiver accepts; < 0 disables the check.
	Limit int64
}

// DefaultOptions accepts uploads of any size.
func DefaultOptions() Options {
	return Options{Limit: -1}
}

func (o Options) pool() api.BytePool {
	if o.Pool != nil {
		return o.Pool
	}
	return pool.Default()
}

// Send uploads size bytes read from r and returns nil once the receiver
// acknowledges them.
func Send(c api.Conn, r io.Reader, size int64, opts Options) error {
	log := logging.Logger().Component("filexfer")

	ok, err := transport.SendValue(c, size)
	if err = check(ok, err); err != nil {
		return err
	}

	bp := opts.pool()
	buf := bp.Acquire(ChunkSize)
	defer bp.Release(buf)

	for left := size; left > 0; {
		n := int64(len(buf))
		if left < n {
			n = left
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("filexfer: read source: %w", err)
		}
		ok, err := c.Send(buf[:n])
		if err = check(ok, err); err != nil {
			return err
		}
		left -= n
	}

	ack, ok, err := transport.RecvValue[bool](c)
	if err = check(ok, err); err != nil {
		return err
	}
	if !ack {
		return ErrRejected
	}
	log.WithField("bytes", size).Debug("upload acknowledged")
	return nil
}

// SendFile uploads the file at path.
func SendFile(c api.Conn, path string, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("filexfer: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("filexfer: %w", err)
	}
	return Send(c, f, st.Size(), opts)
}

// Receive accepts one upload into w and acknowledges it. When w fails
// the rest of the payload is still drained so the sender can read the
// negative acknowledgement; the write error is returned.
func Receive(c api.Conn, w io.Writer, opts Options) (int64, error) {
	size, ok, err := transport.RecvBulkHeader(c, opts.Limit)
	if err = check(ok, err); err != nil {
		return 0, err
	}
	n, werr, err := receiveBody(c, w, size, opts.pool())
	if err != nil {
		return n, err
	}
	return n, finish(c, werr)
}

// ReceiveFile accepts one upload and stores it at path. Data is written
// to a temporary file next to path and renamed into place only when it
// is complete.
func ReceiveFile(c api.Conn, path string, opts Options) (int64, error) {
	size, ok, err := transport.RecvBulkHeader(c, opts.Limit)
	if err = check(ok, err); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".part-*")
	if err != nil {
		// The payload still has to be consumed before saying no.
		if _, _, rerr := receiveBody(c, io.Discard, size, opts.pool()); rerr != nil {
			return 0, rerr
		}
		return 0, finish(c, fmt.Errorf("filexfer: %w", err))
	}
	defer os.Remove(tmp.Name())

	n, werr, err := receiveBody(c, tmp, size, opts.pool())
	if cerr := tmp.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("filexfer: %w", cerr)
	}
	if err != nil {
		return n, err
	}
	if werr == nil {
		if rerr := os.Rename(tmp.Name(), path); rerr != nil {
			werr = fmt.Errorf("filexfer: %w", rerr)
		}
	}
	return n, finish(c, werr)
}

// receiveBody reads size bytes into w. werr is the first write failure;
// after it the remaining bytes are discarded. err is a channel failure.
func receiveBody(c api.Conn, w io.Writer, size int64, bp api.BytePool) (n int64, werr, err error) {
	buf := bp.Acquire(ChunkSize)
	defer bp.Release(buf)
	for n < size {
		m := int64(len(buf))
		if size-n < m {
			m = size - n
		}
		ok, err := c.Recv(buf[:m])
		if err = check(ok, err); err != nil {
			return n, werr, err
		}
		if werr == nil {
			if _, err := w.Write(buf[:m]); err != nil {
				werr = fmt.Errorf("filexfer: write: %w", err)
			}
		}
		n += m
	}
	return n, werr, nil
}

// finish sends the acknowledgement for the outcome werr and returns werr,
// or the send failure if the acknowledgement could not be delivered.
func finish(c api.Conn, werr error) error {
	ok, err := transport.SendValue(c, werr == nil)
	if err = check(ok, err); err != nil && werr == nil {
		return err
	}
	if werr != nil {
		logging.Logger().Component("filexfer").WithError(werr).Warn("upload rejected")
	}
	return werr
}

func check(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return ErrIncomplete
	}
	return nil
}
