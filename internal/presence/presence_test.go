package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreJoinLeaveRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	before, err := s.OnlineUsers(ctx, "moonlit-grove")
	require.NoError(t, err)

	online, err := s.RecordJoin(ctx, "moonlit-grove", "conn-1", "puck")
	require.NoError(t, err)
	assert.Equal(t, []string{"puck"}, online, "expected puck online after join")

	after, err := s.RecordLeave(ctx, "moonlit-grove", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "expected online set to match pre-join state after leave")
}

func TestMemoryStoreDeduplicatesUsernames(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// same user in three tabs
	for _, connId := range []string{"conn-1", "conn-2", "conn-3"} {
		_, err := s.RecordJoin(ctx, "moonlit-grove", connId, "puck")
		require.NoError(t, err)
	}
	_, err := s.RecordJoin(ctx, "moonlit-grove", "conn-4", "ariel")
	require.NoError(t, err)

	online, err := s.OnlineUsers(ctx, "moonlit-grove")
	require.NoError(t, err)
	assert.Equal(t, []string{"ariel", "puck"}, online, "expected deduplicated, sorted usernames")

	// closing one tab keeps the user online
	online, err = s.RecordLeave(ctx, "moonlit-grove", "conn-1")
	require.NoError(t, err)
	assert.Contains(t, online, "puck", "expected puck online while other tabs remain")
}

func TestMemoryStoreScopedPerRoom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.RecordJoin(ctx, "moonlit-grove", "conn-1", "puck")
	require.NoError(t, err)

	online, err := s.OnlineUsers(ctx, "elder-hollow")
	require.NoError(t, err)
	assert.Empty(t, online, "expected no presence leakage across rooms")
}

func TestMemoryStoreReset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// entries written before a simulated crash: RecordLeave never runs
	_, err := s.RecordJoin(ctx, "moonlit-grove", "conn-1", "puck")
	require.NoError(t, err)
	_, err = s.RecordJoin(ctx, "elder-hollow", "conn-2", "ariel")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	for _, room := range []string{"moonlit-grove", "elder-hollow"} {
		online, err := s.OnlineUsers(ctx, room)
		require.NoError(t, err)
		assert.Empty(t, online, "expected no online users in %q after reset", room)
	}
}

func TestMemoryAnnouncerSuppressesWithinCooldown(t *testing.T) {
	a := NewMemoryAnnouncer()
	ctx := context.Background()

	ok, err := a.ShouldAnnounce(ctx, "moonlit-grove", "puck", "join", 120*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expected first announcement to pass")

	for i := 0; i < 5; i++ {
		ok, err = a.ShouldAnnounce(ctx, "moonlit-grove", "puck", "join", 120*time.Second)
		require.NoError(t, err)
		assert.False(t, ok, "expected repeat announcement %d to be suppressed", i)
	}

	// a different action has its own marker
	ok, err = a.ShouldAnnounce(ctx, "moonlit-grove", "puck", "leave", 120*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expected leave announcement to have its own window")
}

func TestMemoryAnnouncerExpiry(t *testing.T) {
	a := NewMemoryAnnouncer()
	ctx := context.Background()

	ok, err := a.ShouldAnnounce(ctx, "moonlit-grove", "puck", "join", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "expected first announcement to pass")

	time.Sleep(20 * time.Millisecond)

	ok, err = a.ShouldAnnounce(ctx, "moonlit-grove", "puck", "join", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "expected announcement to pass again after the window expired")
}

func TestMemoryAnnouncerConcurrentCallers(t *testing.T) {
	a := NewMemoryAnnouncer()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		announced int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := a.ShouldAnnounce(ctx, "moonlit-grove", "puck", "join", 120*time.Second)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				announced++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, announced, "expected exactly one concurrent caller to win the announcement")
}
