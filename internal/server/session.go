package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Session is one live WebSocket connection bound to a single chamber
// for its whole lifetime: Connecting -> Joined -> Closed, with no room
// switching in between.
type Session struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	room       types.Room
	send       chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	handlers   map[string]func(context.Context, *ClientEvent) error
}

func NewSession(user types.User, room types.Room, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Session {
	s := &Session{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		room:       room,
		send:       make(chan []byte, 256),
		stop:       make(chan struct{}),
	}

	// fixed dispatch table over the recognized inbound event kinds
	s.handlers = map[string]func(context.Context, *ClientEvent) error{
		inboundChatMessage: s.handleChatMessage,
		inboundReaction:    s.handleReaction,
	}

	return s
}

func (s *Session) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				return
			}

			if !s.writeMessage(websocket.TextMessage, payload) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) Read() {
	defer func() {
		s.conn.Close()
		s.cleanup()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			// malformed frames are dropped; the socket stays open
			s.log.Println("error parsing event:", err)
			continue
		}

		kind := ev.Type
		if kind == "" {
			kind = inboundChatMessage
		}

		handler, ok := s.handlers[kind]
		if !ok {
			// unrecognized kinds are dropped silently
			continue
		}

		if err := handler(context.Background(), &ev); err != nil {
			// infrastructure failure: fail loudly and drop the
			// connection rather than lose chat state silently
			s.log.Printf("session %s: %s: %v", s.id, kind, err)
			break
		}
	}
}

// handleChatMessage persists a trimmed chat message and broadcasts it.
// A reply reference that does not resolve within the current room
// degrades to no reply context rather than failing the send.
func (s *Session) handleChatMessage(ctx context.Context, ev *ClientEvent) error {
	content := strings.TrimSpace(ev.Message)
	if content == "" {
		return nil
	}

	var (
		reply    *types.ReplyPreview
		parentId int64
	)
	if ev.ReplyTo > 0 {
		parent, err := s.chatServer.db.GetMessageInRoom(ev.ReplyTo, s.room.Id)
		switch {
		case err == nil:
			parentId = parent.Id
			reply = NewReplyPreview(parent)
		case errors.Is(err, sql.ErrNoRows):
			// nonexistent or cross-room parent: send without context
		default:
			return fmt.Errorf("resolve reply: %w", err)
		}
	}

	msg, err := s.chatServer.db.CreateMessage(database.CreateMessageParams{
		RoomId:    s.room.Id,
		AccountId: s.user.Id,
		Content:   content,
		ParentId:  parentId,
		CreatedAt: Now(),
	})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	s.chatServer.stats.Incr("NumMessages")

	return s.chatServer.publish(ctx, s.room.Slug, NewChatEvent(msg.Id, s.user.Username, content, reply))
}

// handleReaction toggles the (message, user, emoji) triple and
// broadcasts the resulting action and count. Invalid or unresolvable
// requests are dropped silently.
func (s *Session) handleReaction(ctx context.Context, ev *ClientEvent) error {
	if ev.MessageId == 0 || ev.Emoji == "" {
		return nil
	}

	if !ValidEmoji(ev.Emoji) {
		return nil
	}

	msg, err := s.chatServer.db.GetMessageInRoom(ev.MessageId, s.room.Id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("resolve reaction target: %w", err)
	}

	added, err := s.chatServer.db.ToggleReaction(msg.Id, s.user.Id, ev.Emoji)
	if err != nil {
		return fmt.Errorf("toggle reaction: %w", err)
	}

	action := ActionRemove
	if added {
		action = ActionAdd
	}

	count, err := s.chatServer.db.CountReactions(msg.Id, ev.Emoji)
	if err != nil {
		return fmt.Errorf("count reactions: %w", err)
	}

	s.chatServer.stats.Incr("NumReactions")

	return s.chatServer.publish(ctx, s.room.Slug, NewReactionEvent(msg.Id, ev.Emoji, action, s.user.Username, count))
}

// queuePayload hands a serialized event to the write pump. A full send
// buffer drops the event for this session only so one slow socket never
// blocks fan-out to the rest of the room.
func (s *Session) queuePayload(payload []byte) bool {
	select {
	case s.send <- payload:
	default:
		s.log.Printf("session %s: send buffer full, dropping event", s.id)
		return false
	}

	return true
}

func (s *Session) writeMessage(msgType int, payload []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (s *Session) stopSession() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Session) cleanup() {
	if err := s.chatServer.leave(context.Background(), s); err != nil {
		s.log.Printf("session %s: leave: %v", s.id, err)
	}
	s.stopSession()
	s.chatServer.wg.Done()
}
