package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store tracks which connections are online in which room. Entries are
// keyed by connection id so a user with multiple tabs occupies multiple
// entries; the online set is the deduplicated projection of usernames.
type Store interface {
	RecordJoin(ctx context.Context, room, connId, username string) ([]string, error)
	RecordLeave(ctx context.Context, room, connId string) ([]string, error)
	OnlineUsers(ctx context.Context, room string) ([]string, error)
	Reset(ctx context.Context) error
}

// Announcer rate-limits join/leave announcements. ShouldAnnounce returns
// true at most once per (room, username, action) within the cooldown
// window, atomically across processes.
type Announcer interface {
	ShouldAnnounce(ctx context.Context, room, username, action string, cooldown time.Duration) (bool, error)
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func presenceKey(room string) string {
	return "presence:" + room
}

func (s *RedisStore) RecordJoin(ctx context.Context, room, connId, username string) ([]string, error) {
	if err := s.rdb.HSet(ctx, presenceKey(room), connId, username).Err(); err != nil {
		return nil, fmt.Errorf("record join: %w", err)
	}

	return s.OnlineUsers(ctx, room)
}

func (s *RedisStore) RecordLeave(ctx context.Context, room, connId string) ([]string, error) {
	if err := s.rdb.HDel(ctx, presenceKey(room), connId).Err(); err != nil {
		return nil, fmt.Errorf("record leave: %w", err)
	}

	return s.OnlineUsers(ctx, room)
}

// OnlineUsers returns the sorted set of unique usernames currently in
// the room. Sorting keeps client rendering stable.
func (s *RedisStore) OnlineUsers(ctx context.Context, room string) ([]string, error) {
	usernames, err := s.rdb.HVals(ctx, presenceKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}

	seen := make(map[string]struct{}, len(usernames))
	unique := make([]string, 0, len(usernames))
	for _, name := range usernames {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	sort.Strings(unique)

	return unique, nil
}

// Reset deletes every presence entry across all rooms. It runs once at
// process startup: connection ids are process-local and an unclean exit
// never fires the leave path, so stale entries must be wiped rather than
// allowed to decay.
func (s *RedisStore) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, presenceKey("*"), 100).Result()
		if err != nil {
			return fmt.Errorf("scan presence keys: %w", err)
		}

		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete presence keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

type RedisAnnouncer struct {
	rdb *redis.Client
}

func NewRedisAnnouncer(rdb *redis.Client) *RedisAnnouncer {
	return &RedisAnnouncer{rdb: rdb}
}

// ShouldAnnounce marks the (room, username, action) key if absent and
// reports whether the caller won the marker. SET NX EX is atomic, so
// concurrent reconnects across processes yield exactly one announcement.
func (a *RedisAnnouncer) ShouldAnnounce(ctx context.Context, room, username, action string, cooldown time.Duration) (bool, error) {
	key := fmt.Sprintf("announce:%s:%s:%s", room, username, action)
	ok, err := a.rdb.SetNX(ctx, key, "1", cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("announce marker: %w", err)
	}

	return ok, nil
}
