package server

import (
	"sync"
)

// registry is the process-local mapping from room slug to the sessions
// this process holds. It has no cross-process visibility; cross-process
// fan-out is delegated entirely to the bus.
type registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

func newRegistry() *registry {
	return &registry{
		rooms: make(map[string]map[*Session]struct{}),
	}
}

// add registers the session and returns the new local session count for
// the room.
func (r *registry) add(room string, s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[room]
	if !ok {
		sessions = make(map[*Session]struct{})
		r.rooms[room] = sessions
	}
	sessions[s] = struct{}{}

	return len(sessions)
}

// remove deregisters the session and returns the remaining local
// session count for the room.
func (r *registry) remove(room string, s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[room]
	if !ok {
		return 0
	}

	delete(sessions, s)
	if len(sessions) == 0 {
		delete(r.rooms, room)
		return 0
	}

	return len(sessions)
}

func (r *registry) forEach(room string, fn func(*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for s := range r.rooms[room] {
		fn(s)
	}
}
