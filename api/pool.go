// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling API for reusable transfer buffers.

package api

// BytePool provides reusable []byte buffers for bulk streaming.
type BytePool interface {
	// Acquire returns a slice of exactly n bytes.
	Acquire(n int) []byte

	// Release returns a buffer to the pool
	Release(buf []byte)
}
