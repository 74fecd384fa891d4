package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/faenet/chambers/internal/bus"
	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/presence"
	"github.com/faenet/chambers/internal/stats"
)

// ChatServer owns the process-wide chat state: the local session
// registry, the per-topic bus subscriptions and the shared presence
// store. It is constructed once at process start and injected into
// every session.
type ChatServer struct {
	log       *log.Logger
	db        database.ChambersRepository
	bus       bus.Bus
	presence  presence.Store
	announcer presence.Announcer
	stats     stats.StatsProvider
	cooldown  time.Duration

	mu       sync.Mutex
	registry *registry
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.ChambersRepository, b bus.Bus,
	ps presence.Store, an presence.Announcer, su stats.StatsProvider, cooldown time.Duration) (*ChatServer, error) {
	cs := &ChatServer{
		log:       logger,
		db:        db,
		bus:       b,
		presence:  ps,
		announcer: an,
		stats:     su,
		cooldown:  cooldown,
		registry:  newRegistry(),
		sessions:  make(map[*Session]struct{}),
	}

	for _, metric := range []string{"NumConnections", "NumMessages", "NumReactions", "NumActiveTopics"} {
		su.RegisterMetric(metric)
	}

	return cs, nil
}

// StartSession moves a connection from Connecting to Joined and starts
// its pumps. On any failure the connection is closed without pumps ever
// running; the session never reaches Joined.
func (cs *ChatServer) StartSession(ctx context.Context, s *Session) error {
	if err := cs.join(ctx, s); err != nil {
		s.conn.Close()
		return fmt.Errorf("join %q: %w", s.room.Slug, err)
	}

	cs.wg.Add(1)
	go s.Write()
	go s.Read()

	return nil
}

// join subscribes the process to the room topic if this is its first
// local session, registers the session, records presence and publishes
// a deduplicated join announcement.
func (cs *ChatServer) join(ctx context.Context, s *Session) error {
	cs.mu.Lock()
	if cs.registry.add(s.room.Slug, s) == 1 {
		ch, err := cs.bus.Subscribe(ctx, roomTopic(s.room.Slug))
		if err != nil {
			cs.registry.remove(s.room.Slug, s)
			cs.mu.Unlock()
			return err
		}

		go cs.fanOut(s.room.Slug, ch)
		cs.stats.Incr("NumActiveTopics")
	}
	cs.sessions[s] = struct{}{}
	cs.mu.Unlock()

	if _, err := cs.presence.RecordJoin(ctx, s.room.Slug, s.id, s.user.Username); err != nil {
		cs.detach(s)
		return err
	}

	cs.stats.Incr("NumConnections")
	cs.log.Printf("session %s: %q joined %q", s.id, s.user.Username, s.room.Slug)

	return cs.announce(ctx, s, "join", NewJoinedEvent(s.user.Username))
}

// leave tears down a Joined session: deregister locally, drop the topic
// subscription if this was the last local session, record the departure
// and publish a deduplicated leave announcement.
func (cs *ChatServer) leave(ctx context.Context, s *Session) error {
	if !cs.detach(s) {
		// the session never reached Joined
		return nil
	}

	cs.stats.Decr("NumConnections")

	if _, err := cs.presence.RecordLeave(ctx, s.room.Slug, s.id); err != nil {
		return err
	}

	cs.log.Printf("session %s: %q left %q", s.id, s.user.Username, s.room.Slug)

	return cs.announce(ctx, s, "leave", NewLeftEvent(s.user.Username))
}

// detach removes the session from local bookkeeping and reports whether
// it was registered. The bus subscription is dropped with the last
// local session for the room.
func (cs *ChatServer) detach(s *Session) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, ok := cs.sessions[s]; !ok {
		return false
	}

	delete(cs.sessions, s)
	if cs.registry.remove(s.room.Slug, s) == 0 {
		if err := cs.bus.Unsubscribe(roomTopic(s.room.Slug)); err != nil {
			cs.log.Printf("unsubscribe %q: %v", s.room.Slug, err)
		}
		cs.stats.Decr("NumActiveTopics")
	}

	return true
}

func (cs *ChatServer) announce(ctx context.Context, s *Session, action string, ev SystemEvent) error {
	ok, err := cs.announcer.ShouldAnnounce(ctx, s.room.Slug, s.user.Username, action, cs.cooldown)
	if err != nil {
		return fmt.Errorf("announce %s: %w", action, err)
	}
	if !ok {
		return nil
	}

	return cs.publish(ctx, s.room.Slug, ev)
}

// publish serializes an event and hands it to the bus. Delivery back to
// this process happens through the topic subscription like any other.
func (cs *ChatServer) publish(ctx context.Context, slug string, ev any) error {
	payload, err := serializeEvent(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	if err := cs.bus.Publish(ctx, roomTopic(slug), payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// fanOut drains one topic subscription, writing each event to every
// locally-registered session for the room. It exits when the
// subscription channel closes. Writes are non-blocking per session, so
// the dispatcher never stalls on a slow socket.
func (cs *ChatServer) fanOut(slug string, ch <-chan []byte) {
	for payload := range ch {
		cs.registry.forEach(slug, func(s *Session) {
			s.queuePayload(payload)
		})
	}
}

// OnlineUsers exposes the room's deduplicated presence set.
func (cs *ChatServer) OnlineUsers(ctx context.Context, slug string) ([]string, error) {
	return cs.presence.OnlineUsers(ctx, slug)
}

// Shutdown stops every session and closes the bus, waiting for session
// pumps to drain or the context to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.mu.Lock()
	for s := range cs.sessions {
		s.stopSession()
		s.conn.Close()
	}
	cs.mu.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return cs.bus.Close()
}
