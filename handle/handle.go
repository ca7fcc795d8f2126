// File: handle/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package handle provides a reference-counted wrapper around one OS
// stream channel descriptor.
//
// Every Handle registered in a Table shares a single entry per
// descriptor. Clone adds a reference, Release drops one, and the
// descriptor is closed exactly once, when the last reference goes. Close
// is the deliberate-shutdown escape hatch: it deregisters the channel
// for all holders at once, after which every Handle sharing it reports
// Good() == false.
//
// A Handle that becomes unreachable without Release is released by a
// finalizer, mirroring os.File.
package handle

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/momentics/sockwire/api"
)

// Handle refers to one channel. The zero value is absent.
type Handle struct {
	table *Table
	ch    atomic.Pointer[channel]
}

func (t *Table) newHandle(ch *channel) *Handle {
	h := &Handle{table: t}
	if ch != nil {
		h.ch.Store(ch)
		runtime.SetFinalizer(h, (*Handle).finalize)
	}
	return h
}

// Open creates a new stream channel for family and registers it with a
// count of 1.
func (t *Table) Open(family int) (*Handle, error) {
	fd, err := t.ops.Socket(family)
	if err != nil {
		return nil, api.NewError(api.KindChannelCreation, "handle.open", err).
			WithContext("family", family)
	}
	return t.newHandle(t.register(fd)), nil
}

// Wrap adopts an externally obtained descriptor, for example one returned
// by accept. A negative fd yields an absent Handle.
func (t *Table) Wrap(fd int) *Handle {
	if fd < 0 {
		return &Handle{table: t}
	}
	return t.newHandle(t.register(fd))
}

// Open creates a channel in the default table.
func Open(family int) (*Handle, error) {
	return DefaultTable().Open(family)
}

// Wrap adopts fd into the default table.
func Wrap(fd int) *Handle {
	return DefaultTable().Wrap(fd)
}

// Clone returns a new Handle sharing h's channel. Cloning an absent or
// evicted Handle yields an absent Handle.
func (h *Handle) Clone() *Handle {
	ch := h.ch.Load()
	if ch == nil || !h.table.acquire(ch) {
		return &Handle{table: h.table}
	}
	return h.table.newHandle(ch)
}

// Release drops this Handle's reference. The channel is closed when the
// count reaches zero. Further calls are no-ops.
func (h *Handle) Release() error {
	ch := h.ch.Swap(nil)
	if ch == nil {
		return nil
	}
	runtime.SetFinalizer(h, nil)
	if err := h.table.release(ch); err != nil {
		return fmt.Errorf("handle release fd %d: %w", ch.fd, err)
	}
	return nil
}

// Close deregisters and closes the channel immediately, for every holder.
// Use it only for deliberate shutdown; ordinary owners call Release.
// Other holders see Good() == false afterwards, but one that already
// fetched FD() may reach whatever channel reuses that number next.
func (h *Handle) Close() error {
	ch := h.ch.Swap(nil)
	if ch == nil {
		return nil
	}
	runtime.SetFinalizer(h, nil)
	if err := h.table.evict(ch); err != nil {
		return fmt.Errorf("handle close fd %d: %w", ch.fd, err)
	}
	return nil
}

// Good reports whether the channel is present and still registered.
func (h *Handle) Good() bool {
	if h == nil || h.table == nil {
		return false
	}
	ch := h.ch.Load()
	return ch != nil && ch.fd >= 0 && h.table.live(ch)
}

// FD returns the descriptor, or -1 when absent. The number is only
// meaningful while Good() holds.
func (h *Handle) FD() int {
	if h == nil {
		return -1
	}
	if ch := h.ch.Load(); ch != nil {
		return ch.fd
	}
	return -1
}

// Refs returns the live reference count of the shared channel.
func (h *Handle) Refs() int {
	if h == nil || h.table == nil {
		return 0
	}
	ch := h.ch.Load()
	if ch == nil {
		return 0
	}
	return h.table.refs(ch)
}

// Table returns the table this Handle is registered in.
func (h *Handle) Table() *Table { return h.table }

func (h *Handle) finalize() {
	_ = h.Release()
}
