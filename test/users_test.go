package test

import (
	"context"
	"sync"

	goSession "github.com/MrEthical07/goSession"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]goSession.UserRecord
}

func newMemUsers(records ...goSession.UserRecord) *memUsers {
	m := &memUsers{users: map[string]goSession.UserRecord{}}
	for _, r := range records {
		m.users[r.UserID] = r
	}
	return m
}

func (m *memUsers) GetUserByIdentifier(ctx context.Context, identifier string) (goSession.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == identifier {
			return u, nil
		}
	}
	return goSession.UserRecord{}, goSession.ErrUserNotFound
}

func (m *memUsers) GetUserByID(_ context.Context, userID string) (goSession.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return goSession.UserRecord{}, goSession.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) BumpSessionVersion(_ context.Context, userID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, goSession.ErrUserNotFound
	}
	u.SessionVersion++
	m.users[userID] = u
	return u.SessionVersion, nil
}

var testUser = goSession.UserRecord{UserID: "u1", Email: "alice@example.com", SessionVersion: 1}
