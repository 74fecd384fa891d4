package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Anonymous reports whether the user was never authenticated. Anonymous
// sessions are closed before they ever join a chamber.
func (u User) Anonymous() bool {
	return u.Id == 0
}

type Room struct {
	Id          int       `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	OwnerId     int       `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        int64           `json:"id"`
	RoomId    int             `json:"room_id"`
	UserId    int             `json:"user_id"`
	Username  string          `json:"username"`
	Content   string          `json:"content"`
	ReplyTo   *ReplyPreview   `json:"reply_to,omitempty"`
	Reactions []ReactionGroup `json:"reactions,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReplyPreview is the flattened view of a message's immediate parent
// carried on chat broadcasts and history responses.
type ReplyPreview struct {
	MessageId int64  `json:"message_id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
}

// ReactionGroup summarizes one emoji's reactions on a message.
type ReactionGroup struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}
