package database

type ChambersRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomBySlug(slug string) (Room, error)
	ListRooms() ([]Room, error)
	DeleteRoom(id int) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageInRoom(messageId int64, roomId int) (Message, error)
	GetMessages(roomId, limit int) ([]Message, error)
	GetReactionCounts(messageId int64) ([]ReactionCount, error)
	ToggleReaction(messageId int64, accountId int, emoji string) (bool, error)
	CountReactions(messageId int64, emoji string) (int, error)
}
