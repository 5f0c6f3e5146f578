// Package relay is a minimal signaling relay: two peers meet in a room and
// every text frame one sends is forwarded verbatim to the other. The relay
// never parses what it forwards.
package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtchat/internal/util"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room already has two peers")
	ErrTooManyRooms = errors.New("too many open rooms")
)

const roomCapacity = 2

// Hub owns every room.
type Hub struct {
	queueSize int
	maxRooms  int

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room
}

// NewHub creates a hub holding at most maxRooms rooms (0 means no limit),
// each queueing at most queueSize frames for a peer that has not joined yet.
func NewHub(queueSize, maxRooms int) *Hub {
	return &Hub{
		queueSize: queueSize,
		maxRooms:  maxRooms,
		rooms:     make(map[uuid.UUID]*room),
	}
}

// CreateRoom registers an empty room and returns its id.
func (h *Hub) CreateRoom() (uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxRooms > 0 && len(h.rooms) >= h.maxRooms {
		return uuid.Nil, ErrTooManyRooms
	}
	id := uuid.New()
	h.rooms[id] = &room{id: id, created: time.Now()}
	util.LogInfo("room %s created (%d open)", id, len(h.rooms))
	return id, nil
}

// Rooms reports how many rooms are open.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Sweep removes every room that has no peer and was created more than ttl
// before now. It returns the number of rooms removed.
func (h *Hub) Sweep(now time.Time, ttl time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, r := range h.rooms {
		r.mu.Lock()
		idle := r.count() == 0 && now.Sub(r.created) > ttl
		r.mu.Unlock()
		if idle {
			delete(h.rooms, id)
			removed++
		}
	}
	if removed > 0 {
		util.LogDebug("removed %d unused rooms (%d open)", removed, len(h.rooms))
	}
	return removed
}

// Peers reports how many peers are in a room.
func (h *Hub) Peers(id uuid.UUID) (int, error) {
	r, err := h.room(id)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count(), nil
}

func (h *Hub) room(id uuid.UUID) (*room, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// join adds conn to the room and delivers whatever the partner sent before it
// arrived.
func (h *Hub) join(id uuid.UUID, conn *websocket.Conn) (*member, error) {
	r, err := h.room(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := -1
	for i, m := range r.members {
		if m == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ErrRoomFull
	}

	m := newMember(conn, h.queueSize)
	r.members[slot] = m
	for _, data := range r.backlog {
		m.enqueue(data)
	}
	if len(r.backlog) > 0 {
		util.LogDebug("room %s: delivered %d queued messages", r.id, len(r.backlog))
	}
	r.backlog = nil

	util.LogInfo("room %s: peer joined (%d/%d)", r.id, r.count(), roomCapacity)
	return m, nil
}

// forward passes data from one member to its partner, or queues it until the
// partner joins.
func (h *Hub) forward(id uuid.UUID, from *member, data []byte) {
	r, err := h.room(id)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if partner := r.partner(from); partner != nil {
		partner.enqueue(data)
		return
	}
	if len(r.backlog) >= h.queueSize {
		util.LogWarning("room %s: queue full, dropping message", r.id)
		return
	}
	r.backlog = append(r.backlog, data)
}

// leave removes m. An empty room is deleted.
func (h *Hub) leave(id uuid.UUID, m *member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[id]
	if !ok {
		return
	}

	r.mu.Lock()
	for i := range r.members {
		if r.members[i] == m {
			r.members[i] = nil
		}
	}
	remaining := r.count()
	r.mu.Unlock()

	m.close()
	util.LogInfo("room %s: peer left (%d/%d)", id, remaining, roomCapacity)

	if remaining == 0 {
		delete(h.rooms, id)
		util.LogDebug("room %s removed", id)
	}
}

type room struct {
	id      uuid.UUID
	created time.Time

	mu      sync.Mutex
	members [roomCapacity]*member
	backlog [][]byte
}

func (r *room) count() int {
	n := 0
	for _, m := range r.members {
		if m != nil {
			n++
		}
	}
	return n
}

func (r *room) partner(m *member) *member {
	for _, other := range r.members {
		if other != nil && other != m {
			return other
		}
	}
	return nil
}

// member is one connected peer. Writes go through a single goroutine.
type member struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newMember(conn *websocket.Conn, queueSize int) *member {
	m := &member{
		conn: conn,
		send: make(chan []byte, queueSize),
	}
	go m.writeLoop()
	return m
}

func (m *member) enqueue(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.send <- data:
	default:
		util.LogWarning("peer is not reading, dropping message")
	}
}

func (m *member) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.send)
	}
}

func (m *member) writeLoop() {
	for data := range m.send {
		if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			util.LogDebug("relay write failed: %v", err)
			return
		}
	}
}
