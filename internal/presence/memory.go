package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for single-process deployments and
// tests. Unlike the Redis store it cannot repair entries left by another
// process, but Reset keeps the startup contract.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]map[string]string),
	}
}

func (s *MemoryStore) RecordJoin(_ context.Context, room, connId, username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.rooms[room]
	if !ok {
		entries = make(map[string]string)
		s.rooms[room] = entries
	}
	entries[connId] = username

	return s.onlineLocked(room), nil
}

func (s *MemoryStore) RecordLeave(_ context.Context, room, connId string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries, ok := s.rooms[room]; ok {
		delete(entries, connId)
		if len(entries) == 0 {
			delete(s.rooms, room)
		}
	}

	return s.onlineLocked(room), nil
}

func (s *MemoryStore) OnlineUsers(_ context.Context, room string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.onlineLocked(room), nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms = make(map[string]map[string]string)
	return nil
}

func (s *MemoryStore) onlineLocked(room string) []string {
	seen := make(map[string]struct{})
	unique := make([]string, 0)
	for _, name := range s.rooms[room] {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	sort.Strings(unique)

	return unique
}

// MemoryAnnouncer implements the set-if-absent-with-expiry marker with a
// mutex, giving the same exactly-one-true guarantee within one process.
type MemoryAnnouncer struct {
	mu      sync.Mutex
	markers map[string]time.Time
}

func NewMemoryAnnouncer() *MemoryAnnouncer {
	return &MemoryAnnouncer{
		markers: make(map[string]time.Time),
	}
}

func (a *MemoryAnnouncer) ShouldAnnounce(_ context.Context, room, username, action string, cooldown time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := room + ":" + username + ":" + action
	if expiry, ok := a.markers[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}

	a.markers[key] = time.Now().Add(cooldown)
	return true, nil
}
