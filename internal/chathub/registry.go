package chathub

import "sync"

// Registry tracks the live connections of this process and the rooms each one
// has joined. A room exists only while it has members.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Client
	rooms  map[string]map[string]Client
	joined map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Client),
		rooms:  make(map[string]map[string]Client),
		joined: make(map[string]map[string]struct{}),
	}
}

// Add records a connection. Adding an already known id replaces the client.
func (r *Registry) Add(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	if _, ok := r.joined[c.ID()]; !ok {
		r.joined[c.ID()] = make(map[string]struct{})
	}
}

// Remove forgets a connection and returns the rooms it was in.
// The bool is false when the connection was unknown.
func (r *Registry) Remove(connID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return nil, false
	}

	left := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		r.leaveLocked(connID, room)
		left = append(left, room)
	}
	delete(r.joined, connID)
	delete(r.conns, connID)
	return left, true
}

// Join adds the connection to room. Joining twice is a no-op. It reports
// false for an unknown connection.
func (r *Registry) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Client)
		r.rooms[room] = members
	}
	members[connID] = c
	r.joined[connID][room] = struct{}{}
	return true
}

// Leave removes the connection from room.
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(connID, room)
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
	}
}

func (r *Registry) leaveLocked(connID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// MembersOf returns a snapshot of the connections in room.
func (r *Registry) MembersOf(room string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Client, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		members = append(members, c)
	}
	return members
}

// IdentityOf returns the user behind a connection.
func (r *Registry) IdentityOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return c.UserID(), true
}

// IsPresent reports whether any connection in room belongs to userID.
// Rooms hold two users and a handful of tabs, so a scan is enough.
func (r *Registry) IsPresent(room, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.rooms[room] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

// RoomsOf returns the rooms a connection has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Clients returns a snapshot of every live connection.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
