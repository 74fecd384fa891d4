package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/types"
)

const (
	EventTypeChat           = "chat"
	EventTypeReactionUpdate = "reaction_update"
	EventTypeSystem         = "system"

	inboundChatMessage = "chat_message"
	inboundReaction    = "reaction"
)

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// previewLength caps the reply preview carried on chat broadcasts.
const previewLength = 100

// ClientEvent is an inbound frame. Type defaults to chat_message when
// absent. Unrecognized or malformed frames are dropped without closing
// the socket.
type ClientEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	ReplyTo   int64  `json:"reply_to,omitempty"`
	MessageId int64  `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

type ChatEvent struct {
	Type      string              `json:"type"`
	Message   string              `json:"message"`
	Username  string              `json:"username"`
	MessageId int64               `json:"message_id"`
	ReplyTo   *types.ReplyPreview `json:"reply_to,omitempty"`
}

type ReactionEvent struct {
	Type      string `json:"type"`
	MessageId int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"`
	Username  string `json:"username"`
	Count     int    `json:"count"`
}

type SystemEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewChatEvent(messageId int64, username, content string, reply *types.ReplyPreview) ChatEvent {
	return ChatEvent{
		Type:      EventTypeChat,
		Message:   content,
		Username:  username,
		MessageId: messageId,
		ReplyTo:   reply,
	}
}

func NewReactionEvent(messageId int64, emoji, action, username string, count int) ReactionEvent {
	return ReactionEvent{
		Type:      EventTypeReactionUpdate,
		MessageId: messageId,
		Emoji:     emoji,
		Action:    action,
		Username:  username,
		Count:     count,
	}
}

func NewJoinedEvent(username string) SystemEvent {
	return SystemEvent{
		Type:    EventTypeSystem,
		Message: fmt.Sprintf("%s has entered the chamber", username),
	}
}

func NewLeftEvent(username string) SystemEvent {
	return SystemEvent{
		Type:    EventTypeSystem,
		Message: fmt.Sprintf("%s has left the chamber", username),
	}
}

// NewReplyPreview flattens a parent message into the preview carried on
// the wire, truncating the content to previewLength runes.
func NewReplyPreview(parent database.Message) *types.ReplyPreview {
	return &types.ReplyPreview{
		MessageId: parent.Id,
		Username:  parent.Username,
		Content:   truncateRunes(parent.Content, previewLength),
	}
}

// PreviewContent truncates parent content the same way broadcasts do,
// for history responses.
func PreviewContent(s string) string {
	return truncateRunes(s, previewLength)
}

// truncateRunes cuts s to at most n runes. Cutting on rune boundaries
// keeps multi-byte content valid UTF-8.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}

// roomTopic names the bus topic for a chamber.
func roomTopic(slug string) string {
	return "chat." + slug
}

func serializeEvent(ev any) ([]byte, error) {
	return json.Marshal(ev)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
