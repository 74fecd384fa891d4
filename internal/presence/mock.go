package presence

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) RecordJoin(ctx context.Context, room, connId, username string) ([]string, error) {
	args := m.Called(ctx, room, connId, username)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockStore) RecordLeave(ctx context.Context, room, connId string) ([]string, error) {
	args := m.Called(ctx, room, connId)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockStore) OnlineUsers(ctx context.Context, room string) ([]string, error) {
	args := m.Called(ctx, room)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockStore) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockAnnouncer struct {
	mock.Mock
}

func (m *MockAnnouncer) ShouldAnnounce(ctx context.Context, room, username, action string, cooldown time.Duration) (bool, error) {
	args := m.Called(ctx, room, username, action, cooldown)
	return args.Bool(0), args.Error(1)
}
