package realtime

import (
	"fmt"
	"sync"
)

// Registry tracks every live connection and its room memberships. A single
// mutex guards both maps so deregistration removes a connection from all
// rooms in one step and membership snapshots are always consistent.
type Registry struct {
	mu sync.RWMutex

	// conns indexes connections by connection ID.
	conns map[string]*Conn

	// rooms maps room ID -> connection ID -> connection. Empty rooms are
	// pruned on the last leave.
	rooms map[string]map[string]*Conn

	// membership maps connection ID -> set of room IDs, the reverse index
	// used for full cleanup on deregister.
	membership map[string]map[string]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[string]*Conn),
		rooms:      make(map[string]map[string]*Conn),
		membership: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection and auto-joins it to its owner's personal
// room. A connection only ever enters the registry fully authenticated.
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.id] = conn
	r.membership[conn.id] = make(map[string]struct{})
	r.joinLocked(conn, UserRoom(conn.UserID()))
}

// Deregister removes a connection from every room and the registry, then
// closes its outbound queue. After it returns the connection is absent
// from all membership snapshots. Unknown connections are a no-op, so the
// disconnect path is idempotent.
func (r *Registry) Deregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}

	for roomID := range r.membership[connID] {
		r.leaveLocked(connID, roomID)
	}
	delete(r.membership, connID)
	delete(r.conns, connID)

	conn.closeSend()
}

// Join adds the connection to a room. Joining a room the connection is
// already in is a no-op. The room ID must be well-formed; authorisation
// for portfolio rooms is the caller's concern.
func (r *Registry) Join(connID, roomID string) error {
	if _, _, err := ParseRoom(roomID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	r.joinLocked(conn, roomID)
	return nil
}

// Leave removes the connection from a room. Leaving a room the connection
// is not in is a no-op. A connection can never leave its own personal room.
func (r *Registry) Leave(connID, roomID string) error {
	kind, _, err := ParseRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	if kind == RoomKindUser && roomID == UserRoom(conn.UserID()) {
		return ErrPersonalRoomLeave
	}

	r.leaveLocked(connID, roomID)
	return nil
}

// MembersOf returns a snapshot of the room's current members. Connections
// added or removed after the snapshot is taken are not reflected in it.
// An unknown or empty room yields an empty slice.
func (r *Registry) MembersOf(roomID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	members := make([]*Conn, 0, len(room))
	for _, conn := range room {
		members = append(members, conn)
	}
	return members
}

// Connection looks up a live connection by ID.
func (r *Registry) Connection(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	return conn, ok
}

// InRoom reports whether the connection is currently a member of the room.
func (r *Registry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID][connID]
	return ok
}

// Rooms returns the room IDs the connection is currently in.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.membership[connID]))
	for roomID := range r.membership[connID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// CloseAll deregisters every connection, used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]string, 0, len(r.conns))
	for id := range r.conns {
		conns = append(conns, id)
	}
	r.mu.Unlock()

	for _, id := range conns {
		r.Deregister(id)
	}
}

func (r *Registry) joinLocked(conn *Conn, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]*Conn)
		r.rooms[roomID] = room
	}
	room[conn.id] = conn
	r.membership[conn.id][roomID] = struct{}{}
}

func (r *Registry) leaveLocked(connID, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
	delete(r.membership[connID], roomID)
}
