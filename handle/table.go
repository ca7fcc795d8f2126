// File: handle/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide reference table mapping a channel descriptor to its live
// shared-ownership entry.

package handle

import (
	"sync"

	"github.com/momentics/sockwire/control"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/internal/sysnet"
)

// channel is the shared-ownership entry for one descriptor. refs is
// guarded by the owning Table's mutex.
type channel struct {
	fd   int
	refs int
}

// Table tracks how many Handles refer to each open descriptor and closes
// the descriptor when the last one lets go. It is the one shared mutable
// structure in sockwire and is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	ops     sysnet.Ops
	entries map[int]*channel
}

// NewTable creates an empty table that allocates and releases channels
// through ops.
func NewTable(ops sysnet.Ops) *Table {
	if ops == nil {
		ops = sysnet.Default
	}
	return &Table{ops: ops, entries: make(map[int]*channel)}
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// DefaultTable returns the process-wide table.
func DefaultTable() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable(sysnet.Default)
		control.Probes().RegisterProbe("handles.open", func() any {
			return defaultTable.Len()
		})
	})
	return defaultTable
}

// Ops returns the primitives used by this table.
func (t *Table) Ops() sysnet.Ops { return t.ops }

// Len returns the number of registered descriptors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Refs returns the reference count for fd, 0 when unregistered.
func (t *Table) Refs(fd int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.entries[fd]; ok {
		return ch.refs
	}
	return 0
}

// register increments the count for fd, inserting it with count 1 when
// unseen.
func (t *Table) register(fd int) *channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.entries[fd]
	if !ok {
		ch = &channel{fd: fd}
		t.entries[fd] = ch
	}
	ch.refs++
	return ch
}

func (t *Table) live(ch *channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[ch.fd] == ch
}

// acquire adds a reference to ch if it is still registered.
func (t *Table) acquire(ch *channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[ch.fd] != ch {
		return false
	}
	ch.refs++
	return true
}

func (t *Table) refs(ch *channel) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[ch.fd] != ch {
		return 0
	}
	return ch.refs
}

// release drops one reference and closes the descriptor at zero. A
// channel that was already evicted is left alone.
func (t *Table) release(ch *channel) error {
	t.mu.Lock()
	if t.entries[ch.fd] != ch {
		t.mu.Unlock()
		return nil
	}
	ch.refs--
	if ch.refs > 0 {
		t.mu.Unlock()
		return nil
	}
	delete(t.entries, ch.fd)
	t.mu.Unlock()
	return t.destroy(ch.fd)
}

// evict deregisters ch regardless of its count and closes it.
func (t *Table) evict(ch *channel) error {
	t.mu.Lock()
	if t.entries[ch.fd] != ch {
		t.mu.Unlock()
		return nil
	}
	delete(t.entries, ch.fd)
	t.mu.Unlock()
	return t.destroy(ch.fd)
}

// destroy runs outside the lock. The number stays reserved only until
// Close below returns; after that a concurrent Open or Wrap may get it
// back, and a holder that read FD() before the entry was removed can
// reach the new channel. Handles see that through Good(), raw
// descriptors do not.
func (t *Table) destroy(fd int) error {
	// Shutdown wakes goroutines blocked in recv/accept on Linux; it fails
	// harmlessly on channels that were never connected.
	_ = t.ops.Shutdown(fd)
	err := t.ops.Close(fd)
	logging.Logger().Component("handle").WithField("fd", fd).Debug("channel released")
	return err
}
