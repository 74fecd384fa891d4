package database

import "time"

type Account struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	Name        string
	Slug        string
	Description string
	OwnerId     int
	CreatedAt   time.Time
}

// Message is a persisted chat message. Parent fields are populated when
// the message is a reply and the parent still exists.
type Message struct {
	Id             int64
	RoomId         int
	AccountId      int
	Username       string
	Content        string
	ParentId       int64
	ParentUsername string
	ParentContent  string
	CreatedAt      time.Time
}

type Reaction struct {
	Id        int64
	MessageId int64
	AccountId int
	Emoji     string
	CreatedAt time.Time
}

// ReactionCount is a per-emoji tally of reactions on one message.
type ReactionCount struct {
	Emoji string
	Count int
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Slug        string
	Description string
	OwnerId     int
}

type CreateMessageParams struct {
	RoomId    int
	AccountId int
	Content   string
	// ParentId is zero when the message is not a reply.
	ParentId  int64
	CreatedAt time.Time
}
