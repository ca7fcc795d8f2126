// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/momentics/sockwire/api"
)

const (
	minClassShift = 6  // 64 B
	maxClassShift = 22 // 4 MiB
)

// BytePool hands out byte slices from power-of-two size classes.
// Requests above the largest class are allocated directly and dropped
// on Release.
type BytePool struct {
	classes [maxClassShift - minClassShift + 1]sizeClass

	totalAlloc atomic.Int64
	totalGet   atomic.Int64
	totalPut   atomic.Int64
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	bp := &BytePool{}
	for i := range bp.classes {
		size := 1 << (minClassShift + i)
		bp.classes[i].buffers.New = func() any {
			bp.totalAlloc.Add(1)
			buf := make([]byte, size)
			return &buf
		}
	}
	return bp
}

// sizeClass holds full-capacity buffers of one power-of-two size.
// Pointers are pooled so Put does not allocate a slice header.
type sizeClass struct {
	buffers sync.Pool
}

func (sc *sizeClass) get() []byte { return *sc.buffers.Get().(*[]byte) }

func (sc *sizeClass) put(buf []byte) { sc.buffers.Put(&buf) }

// classOf returns the class index serving n bytes, or -1 if n is too
// large to pool.
func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// Acquire returns a slice of length n. Its contents are unspecified.
func (bp *BytePool) Acquire(n int) []byte {
	if n < 0 {
		n = 0
	}
	bp.totalGet.Add(1)
	c := classOf(n)
	if c < 0 {
		bp.totalAlloc.Add(1)
		return make([]byte, n)
	}
	return bp.classes[c].get()[:n]
}

// Release returns buf to the class matching its capacity. Slices that
// did not come from Acquire are accepted when their capacity is an exact
// class size and ignored otherwise.
func (bp *BytePool) Release(buf []byte) {
	c := cap(buf)
	if c < 1<<minClassShift || c > 1<<maxClassShift || c&(c-1) != 0 {
		return
	}
	bp.totalPut.Add(1)
	bp.classes[bits.Len(uint(c))-1-minClassShift].put(buf[:c])
}

// Stats reports allocation counters: buffers created, handed out and
// returned.
func (bp *BytePool) Stats() map[string]int64 {
	return map[string]int64{
		"alloc":   bp.totalAlloc.Load(),
		"acquire": bp.totalGet.Load(),
		"release": bp.totalPut.Load(),
	}
}

var _ api.BytePool = (*BytePool)(nil)
