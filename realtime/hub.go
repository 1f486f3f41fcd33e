package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Listener is one connected subscriber. Send must return without blocking
// (queue or fail, never wait on I/O) since it runs on the hub's publish path;
// a failed send only affects that listener.
type Listener interface {
	Send(data []byte) error
}

// Hub is the room registry: room key -> set of connected listeners. A listener
// belongs to at most one room at a time. Membership is process-local and not
// durable; messages themselves are persisted before they reach Publish.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[Listener]bool
	member map[Listener]string
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[Listener]bool),
		member: make(map[Listener]string),
		logger: logger,
	}
}

// Join adds the listener to the room, creating it on first join. A listener
// already in another room is moved.
func (h *Hub) Join(l Listener, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(l)

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[Listener]bool)
	}
	h.rooms[room][l] = true
	h.member[l] = room
}

// Leave removes the listener from its room, destroying the room when it empties.
func (h *Hub) Leave(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(l)
}

func (h *Hub) removeLocked(l Listener) {
	room, ok := h.member[l]
	if !ok {
		return
	}
	delete(h.member, l)

	set := h.rooms[room]
	if set == nil {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// Publish delivers data to every listener currently in the room. Delivery is
// best-effort and at-most-once: a failed send is logged and skipped so it
// cannot block the rest of the room. Listener Send implementations must not
// block (they hand off to a buffered writer); under that contract holding the
// lock across the sends keeps join/leave/publish on one room observed in the
// order issued without wedging the hub on a stalled connection.
func (h *Hub) Publish(room string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for l := range h.rooms[room] {
		if err := l.Send(data); err != nil {
			h.logger.WithError(err).WithField("room", room).Warn("Dropping undeliverable realtime event")
		}
	}
}

// RoomSize reports the current listener count for a room, 0 when it does not exist.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
