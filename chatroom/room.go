// Package chatroom
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A line-oriented chat relay built on zero-terminated strings.
//
// Session, from the client's side:
//
//	client -> server   name (string)
//	server -> client   true (bool acknowledgement)
//	server -> all      "(<name> has entered the room)"
//	client -> server   message (string), repeated
//	server -> others   "<name>: <message>"
//	server -> others   "<name> has left the room."   once the client leaves
//
// Empty messages are ignored.

package chatroom

import (
	"context"
	"sort"
	"sync"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/transport"
	"github.com/momentics/sockwire/transport/tcp"
)

// DefaultBacklog is the number of undelivered lines kept per member
// before the oldest ones are dropped.
const DefaultBacklog = 256

// RoomOptions configures a Room.
type RoomOptions struct {
	// Backlog bounds each member's outbound queue.
	Backlog int
	// Notify, if set, receives every line the room relays, in order.
	Notify func(line string)
}

// DefaultRoomOptions returns options with the default backlog.
func DefaultRoomOptions() RoomOptions {
	return RoomOptions{Backlog: DefaultBacklog}
}

// Room relays lines between connected members.
type Room struct {
	opts RoomOptions

	mu      sync.Mutex
	members map[string]*member
	closed  bool

	// broadcast order is serialized so every member sees the same order.
	relay sync.Mutex
}

// NewRoom creates an empty room.
func NewRoom(opts RoomOptions) *Room {
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	return &Room{opts: opts, members: make(map[string]*member)}
}

// Handler adapts the room to tcp.Listener.Serve.
func (r *Room) Handler() tcp.Handler {
	return func(ctx context.Context, t *transport.Transport) {
		_ = r.Serve(ctx, t)
	}
}

// Serve runs one member's session on c until the member leaves, the
// connection fails or ctx is done. It does not close c.
func (r *Room) Serve(ctx context.Context, c api.Conn) error {
	log := logging.Logger().Component("chatroom")

	name, ok, err := c.RecvString()
	if err != nil || !ok {
		return err
	}
	if ok, err := transport.SendValue(c, true); err != nil || !ok {
		return err
	}

	m := newMember(name, c, r.opts.Backlog)
	if !r.join(m) {
		m.stop()
		return api.NewError(api.KindClosed, "chatroom.join", nil)
	}
	go m.writeLoop()
	log.WithFields(logging.LogFields{"member": m.id, "name": name}).Info("joined")

	stop := context.AfterFunc(ctx, func() { closeConn(c) })
	defer stop()

	r.broadcast("("+name+" has entered the room)", nil)
	for {
		msg, ok, err := c.RecvString()
		if err != nil || !ok {
			r.leave(m)
			r.broadcast(name+" has left the room.", m)
			log.WithFields(logging.LogFields{"member": m.id, "name": name}).
				WithError(err).Info("left")
			return err
		}
		if msg == "" {
			continue
		}
		r.broadcast(name+": "+msg, m)
	}
}

func (r *Room) join(m *member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.members[m.id] = m
	return true
}

func (r *Room) leave(m *member) {
	r.mu.Lock()
	delete(r.members, m.id)
	r.mu.Unlock()
	m.stop()
}

// broadcast queues line for every member except skip.
func (r *Room) broadcast(line string, skip *member) {
	r.relay.Lock()
	defer r.relay.Unlock()
	if r.opts.Notify != nil {
		r.opts.Notify(line)
	}
	r.mu.Lock()
	targets := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		if m != skip {
			targets = append(targets, m)
		}
	}
	r.mu.Unlock()
	for _, m := range targets {
		m.enqueue(line)
	}
}

// Members returns the names of everyone in the room, sorted.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects every member and refuses new ones.
func (r *Room) Close() {
	r.mu.Lock()
	r.closed = true
	members := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.mu.Unlock()
	for _, m := range members {
		m.stop()
		closeConn(m.conn)
	}
}

// closeConn shuts the channel for every holder when the connection
// supports it, so a Recv blocked in another goroutine returns.
func closeConn(c api.Conn) {
	type forceCloser interface{ ForceClose() error }
	if fc, ok := c.(forceCloser); ok {
		_ = fc.ForceClose()
		return
	}
	_ = c.Close()
}

// member owns an outbound queue drained by its own writer goroutine, so
// a slow reader never stalls the room.
type member struct {
	id      string
	name    string
	conn    api.Conn
	backlog int

	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue
	stopped bool
}

func newMember(name string, c api.Conn, backlog int) *member {
	m := &member{
		id:      uuid.New().String(),
		name:    name,
		conn:    c,
		backlog: backlog,
		pending: queue.New(),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *member) enqueue(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.pending.Length() >= m.backlog {
		m.pending.Remove()
		logging.Logger().Component("chatroom").
			WithField("member", m.id).Warn("backlog full, dropping oldest line")
	}
	m.pending.Add(line)
	m.cond.Signal()
}

func (m *member) stop() {
	m.mu.Lock()
	m.stopped = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *member) writeLoop() {
	for {
		m.mu.Lock()
		for m.pending.Length() == 0 && !m.stopped {
			m.cond.Wait()
		}
		if m.stopped {
			m.mu.Unlock()
			return
		}
		line := m.pending.Remove().(string)
		m.mu.Unlock()

		if ok, err := m.conn.SendString(line); err != nil || !ok {
			m.stop()
			return
		}
	}
}
