package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChambersRepository struct {
	mock.Mock
}

func (m *MockChambersRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChambersRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChambersRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChambersRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChambersRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChambersRepository) GetRoomBySlug(slug string) (Room, error) {
	args := m.Called(slug)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChambersRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChambersRepository) DeleteRoom(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockChambersRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChambersRepository) GetMessageInRoom(messageId int64, roomId int) (Message, error) {
	args := m.Called(messageId, roomId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChambersRepository) GetMessages(roomId, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChambersRepository) GetReactionCounts(messageId int64) ([]ReactionCount, error) {
	args := m.Called(messageId)
	return args.Get(0).([]ReactionCount), args.Error(1)
}
func (m *MockChambersRepository) ToggleReaction(messageId int64, accountId int, emoji string) (bool, error) {
	args := m.Called(messageId, accountId, emoji)
	return args.Bool(0), args.Error(1)
}
func (m *MockChambersRepository) CountReactions(messageId int64, emoji string) (int, error) {
	args := m.Called(messageId, emoji)
	return args.Int(0), args.Error(1)
}
