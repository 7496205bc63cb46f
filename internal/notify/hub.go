// Package notify fans lifecycle events out to connected observers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
)

const DefaultSendBuffer = 64

// Conn is one observer. Events arrive on Messages in publish order.
type Conn struct {
	ID    string
	send  chan events.Event
	rooms map[string]struct{}
	once  sync.Once
}

func (c *Conn) Messages() <-chan events.Event { return c.send }

// Hub tracks connections and rooms. Delivery is best effort: an event is
// dropped for a connection whose buffer is full, and nothing is replayed.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	rooms  map[string]map[string]*Conn
	buffer int
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewHub(buffer int, log *zap.SugaredLogger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]*Conn),
		buffer: buffer,
		log:    log,
		now:    time.Now,
	}
}

// Connect registers a new observer and greets it with a connected event.
func (h *Hub) Connect() *Conn {
	c := &Conn{
		ID:    uuid.NewString(),
		send:  make(chan events.Event, h.buffer),
		rooms: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.conns[c.ID] = c
	h.deliver(c, h.event(events.Connected, map[string]string{"message": "Connected to Issue Tracker"}))
	h.mu.Unlock()
	h.log.Debugw("observer connected", "conn", c.ID)
	return c
}

// Disconnect drops the observer from every room and closes its stream.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID)
	for room := range c.rooms {
		h.removeFromRoom(room, c)
	}
	h.mu.Unlock()
	c.once.Do(func() { close(c.send) })
	h.log.Debugw("observer disconnected", "conn", c.ID)
}

// Join subscribes c to room and acknowledges with joined_room.
func (h *Hub) Join(c *Conn, room string) bool {
	if room == "" {
		return false
	}
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}
	h.deliver(c, h.event(events.JoinedRoom, map[string]string{"room": room}))
	h.mu.Unlock()
	return true
}

// Leave unsubscribes c from room and acknowledges with left_room.
func (h *Hub) Leave(c *Conn, room string) bool {
	if room == "" {
		return false
	}
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(c.rooms, room)
	h.removeFromRoom(room, c)
	h.deliver(c, h.event(events.LeftRoom, map[string]string{"room": room}))
	h.mu.Unlock()
	return true
}

// removeFromRoom requires h.mu held for writing.
func (h *Hub) removeFromRoom(room string, c *Conn) {
	members := h.rooms[room]
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish sends evt to every connection, or only to its room when set.
func (h *Hub) Publish(_ context.Context, evt events.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if evt.Room == "" {
		for _, c := range h.conns {
			h.deliver(c, evt)
		}
		return nil
	}
	for _, c := range h.rooms[evt.Room] {
		h.deliver(c, evt)
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		h.Disconnect(c)
	}
}

func (h *Hub) event(t events.Type, data any) events.Event {
	return events.Event{Type: t, Data: data, TS: h.now().UTC()}
}

// deliver never blocks. Callers hold h.mu, so the channel cannot be closed
// underneath the send.
func (h *Hub) deliver(c *Conn, evt events.Event) {
	select {
	case c.send <- evt:
	default:
		h.log.Warnw("observer buffer full, event dropped", "conn", c.ID, "event", evt.Type)
	}
}
