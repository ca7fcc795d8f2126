// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync/atomic"

	"github.com/momentics/sockwire/api"
)

// BytePool is a non-pooling api.BytePool that counts calls, so tests
// can check that every acquired buffer is released.
type BytePool struct {
	acquired atomic.Int64
	released atomic.Int64
}

func (f *BytePool) Acquire(n int) []byte {
	f.acquired.Add(1)
	return make([]byte, n)
}

func (f *BytePool) Release(_ []byte) { f.released.Add(1) }

// Outstanding returns acquires minus releases.
func (f *BytePool) Outstanding() int64 {
	return f.acquired.Load() - f.released.Load()
}

var _ api.BytePool = (*BytePool)(nil)
