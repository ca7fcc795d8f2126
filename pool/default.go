package pool

import (
	"sync"

	"github.com/momentics/sockwire/control"
)

var (
	defaultOnce sync.Once
	defaultPool *BytePool
)

// Default returns the process-wide BytePool so bulk transfers share one
// set of size classes. Its counters are exposed as the "pool" probe.
func Default() *BytePool {
	defaultOnce.Do(func() {
		defaultPool = NewBytePool()
		control.Probes().RegisterProbe("pool", func() any {
			return defaultPool.Stats()
		})
	})
	return defaultPool
}
