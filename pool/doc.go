// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable transfer buffers. BytePool groups buffers into power-of-two
// size classes, each backed by a sync.Pool, and keeps allocation
// counters for the debug probes.
package pool
