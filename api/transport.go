// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the connection contract consumed by protocol layers
// (file transfer, chat relay) so they can run over a real socket
// Transport or an in-memory fake.

package api

// Conn is a blocking, full-duplex byte channel with exact-length
// transfer semantics.
//
// The boolean result of every transfer reports whether the connection is
// still usable: false with a nil error means the peer closed the
// connection gracefully. A non-nil error is a genuine failure.
type Conn interface {
	// Send writes exactly len(p) bytes.
	Send(p []byte) (bool, error)

	// Recv fills p completely.
	Recv(p []byte) (bool, error)

	// SendString writes s followed by a single zero byte.
	SendString(s string) (bool, error)

	// RecvString reads bytes up to (and excluding) the next zero byte.
	RecvString() (string, bool, error)

	// Close releases this holder's reference to the channel.
	Close() error

	// RawFD returns the OS-level descriptor, or -1 when absent.
	RawFD() int
}
