package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/stats"
	"github.com/faenet/chambers/internal/testutil"
	"github.com/faenet/chambers/internal/types"
)

func newTestSession(t *testing.T, cs *ChatServer) *Session {
	return &Session{
		id:         "test-session",
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       types.User{Id: 1, Username: "ariel"},
		room:       types.Room{Id: 1, Slug: "grove", Name: "Grove"},
		send:       make(chan []byte, 1),
		stop:       make(chan struct{}),
	}
}

// subscribeTopic taps the room topic so tests can observe what the
// handlers publish.
func subscribeTopic(t *testing.T, cs *ChatServer, slug string) <-chan []byte {
	ch, err := cs.bus.Subscribe(context.Background(), roomTopic(slug))
	require.NoError(t, err, "expected topic subscription to succeed")
	return ch
}

func receivePayload(t *testing.T, ch <-chan []byte) []byte {
	select {
	case payload := <-ch:
		return payload
	default:
		t.Fatal("expected an event on the topic, but none was published")
		return nil
	}
}

func Test_queuePayload(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		s := &Session{
			send: make(chan []byte, 1),
			log:  testutil.TestLogger(t),
		}

		res := s.queuePayload([]byte("{}"))
		assert.True(t, res, "expected queuePayload to return true when channel is not full")

		select {
		case payload := <-s.send:
			assert.NotNil(t, payload, "expected a payload to be queued for the session")
		default:
			t.Error("expected a payload to be queued for the session, but none was")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		s := &Session{
			send: make(chan []byte, 1),
			log:  testutil.TestLogger(t),
		}

		s.send <- []byte("{}") // Pre-fill the send channel to simulate a full channel
		res := s.queuePayload([]byte("{}"))
		assert.False(t, res, "expected queuePayload to return false when channel is full")
	})
}

func Test_stopSession(t *testing.T) {
	s := &Session{
		stop: make(chan struct{}),
	}

	s.stopSession()
	s.stopSession() // a second stop must be a no-op

	select {
	case <-s.stop:
		// Channel is closed as expected
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_handleChatMessage(t *testing.T) {
	t.Run("persists and broadcasts", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)
		ch := subscribeTopic(t, cs, s.room.Slug)

		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.RoomId == 1 && p.AccountId == 1 && p.Content == "over here" && p.ParentId == 0
		})).Return(database.Message{Id: 7}, nil).Once()
		su.On("Incr", "NumMessages").Once()

		err := s.handleChatMessage(context.Background(), &ClientEvent{Message: "  over here  "})
		assert.NoError(t, err, "expected no error handling a chat message")

		var ev ChatEvent
		require.NoError(t, json.Unmarshal(receivePayload(t, ch), &ev))
		assert.Equal(t, EventTypeChat, ev.Type, "expected a chat event")
		assert.Equal(t, int64(7), ev.MessageId, "expected the persisted message id")
		assert.Equal(t, "ariel", ev.Username, "expected the sender's username")
		assert.Equal(t, "over here", ev.Message, "expected whitespace trimmed")
		assert.Nil(t, ev.ReplyTo, "expected no reply context")
	})

	t.Run("blank message dropped", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)

		err := s.handleChatMessage(context.Background(), &ClientEvent{Message: "   "})
		assert.NoError(t, err, "expected a blank message to be dropped without error")
	})

	t.Run("reply preview attached and truncated", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)
		ch := subscribeTopic(t, cs, s.room.Slug)

		db.On("GetMessageInRoom", int64(3), 1).Return(database.Message{
			Id:       3,
			Username: "puck",
			Content:  strings.Repeat("a", 250),
		}, nil).Once()
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.ParentId == 3
		})).Return(database.Message{Id: 8}, nil).Once()
		su.On("Incr", "NumMessages").Once()

		err := s.handleChatMessage(context.Background(), &ClientEvent{Message: "same", ReplyTo: 3})
		assert.NoError(t, err, "expected no error handling a reply")

		var ev ChatEvent
		require.NoError(t, json.Unmarshal(receivePayload(t, ch), &ev))
		require.NotNil(t, ev.ReplyTo, "expected reply context on the broadcast")
		assert.Equal(t, int64(3), ev.ReplyTo.MessageId, "expected parent message id")
		assert.Equal(t, "puck", ev.ReplyTo.Username, "expected parent author")
		assert.Equal(t, strings.Repeat("a", 100), ev.ReplyTo.Content, "expected preview truncated to 100 runes")
	})

	t.Run("unresolvable reply degrades to plain message", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)
		ch := subscribeTopic(t, cs, s.room.Slug)

		db.On("GetMessageInRoom", int64(99), 1).Return(database.Message{}, sql.ErrNoRows).Once()
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.ParentId == 0
		})).Return(database.Message{Id: 9}, nil).Once()
		su.On("Incr", "NumMessages").Once()

		err := s.handleChatMessage(context.Background(), &ClientEvent{Message: "same", ReplyTo: 99})
		assert.NoError(t, err, "expected a dangling reply reference to degrade, not fail")

		var ev ChatEvent
		require.NoError(t, json.Unmarshal(receivePayload(t, ch), &ev))
		assert.Nil(t, ev.ReplyTo, "expected no reply context for a dangling reference")
	})

	t.Run("database failure surfaces", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)

		db.On("CreateMessage", mock.Anything).Return(database.Message{}, errors.New("connection reset")).Once()

		err := s.handleChatMessage(context.Background(), &ClientEvent{Message: "over here"})
		assert.Error(t, err, "expected a persistence failure to surface")
	})
}

func Test_handleReaction(t *testing.T) {
	t.Run("toggle on broadcasts add with count", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)
		ch := subscribeTopic(t, cs, s.room.Slug)

		db.On("GetMessageInRoom", int64(7), 1).Return(database.Message{Id: 7}, nil).Once()
		db.On("ToggleReaction", int64(7), 1, "\U0001F389").Return(true, nil).Once()
		db.On("CountReactions", int64(7), "\U0001F389").Return(3, nil).Once()
		su.On("Incr", "NumReactions").Once()

		err := s.handleReaction(context.Background(), &ClientEvent{Type: inboundReaction, MessageId: 7, Emoji: "\U0001F389"})
		assert.NoError(t, err, "expected no error handling a reaction")

		var ev ReactionEvent
		require.NoError(t, json.Unmarshal(receivePayload(t, ch), &ev))
		assert.Equal(t, EventTypeReactionUpdate, ev.Type, "expected a reaction update event")
		assert.Equal(t, ActionAdd, ev.Action, "expected an add action")
		assert.Equal(t, 3, ev.Count, "expected the post-toggle count")
		assert.Equal(t, "ariel", ev.Username, "expected the reacting user")
	})

	t.Run("toggle off broadcasts remove with zero count", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)
		ch := subscribeTopic(t, cs, s.room.Slug)

		db.On("GetMessageInRoom", int64(7), 1).Return(database.Message{Id: 7}, nil).Once()
		db.On("ToggleReaction", int64(7), 1, "\U0001F389").Return(false, nil).Once()
		db.On("CountReactions", int64(7), "\U0001F389").Return(0, nil).Once()
		su.On("Incr", "NumReactions").Once()

		err := s.handleReaction(context.Background(), &ClientEvent{Type: inboundReaction, MessageId: 7, Emoji: "\U0001F389"})
		assert.NoError(t, err, "expected no error handling a reaction")

		payload := receivePayload(t, ch)
		assert.Contains(t, string(payload), `"count":0`, "expected the zero count on the wire")

		var ev ReactionEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, ActionRemove, ev.Action, "expected a remove action")
	})

	t.Run("invalid requests dropped silently", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)

		cases := []*ClientEvent{
			{Type: inboundReaction},                                      // no target, no emoji
			{Type: inboundReaction, MessageId: 7},                        // no emoji
			{Type: inboundReaction, Emoji: "\U0001F389"},                 // no target
			{Type: inboundReaction, MessageId: 7, Emoji: "<b>"},          // not an emoji
			{Type: inboundReaction, MessageId: 7, Emoji: "\U0001F389 x"}, // mixed content
		}
		for _, ev := range cases {
			assert.NoError(t, s.handleReaction(context.Background(), ev), "expected invalid reaction to be dropped without error")
		}
	})

	t.Run("unknown target dropped silently", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)

		db.On("GetMessageInRoom", int64(99), 1).Return(database.Message{}, sql.ErrNoRows).Once()

		err := s.handleReaction(context.Background(), &ClientEvent{Type: inboundReaction, MessageId: 99, Emoji: "\U0001F389"})
		assert.NoError(t, err, "expected a reaction to an unknown message to be dropped without error")
	})

	t.Run("toggle failure surfaces", func(t *testing.T) {
		db := &database.MockChambersRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}

		cs := newTestChatServer(t, db, su)
		s := newTestSession(t, cs)

		db.On("GetMessageInRoom", int64(7), 1).Return(database.Message{Id: 7}, nil).Once()
		db.On("ToggleReaction", int64(7), 1, "\U0001F389").Return(false, errors.New("connection reset")).Once()

		err := s.handleReaction(context.Background(), &ClientEvent{Type: inboundReaction, MessageId: 7, Emoji: "\U0001F389"})
		assert.Error(t, err, "expected a toggle failure to surface")
	})
}
