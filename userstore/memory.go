package userstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrEthical07/tokenguard"
)

// ErrDuplicateEmail is returned by Create when the email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// Memory is a concurrency-safe in-process user table.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]tokenguard.UserRecord
	byEmail map[string]string
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]tokenguard.UserRecord),
		byEmail: make(map[string]string),
	}
}

// Create stores a user with a fresh uuid. passwordHash must already be hashed.
func (m *Memory) Create(_ context.Context, email, passwordHash, role string) (tokenguard.UserRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return tokenguard.UserRecord{}, errors.New("email is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return tokenguard.UserRecord{}, ErrDuplicateEmail
	}
	u := tokenguard.UserRecord{
		UserID:       uuid.NewString(),
		Email:        email,
		Role:         role,
		PasswordHash: passwordHash,
	}
	m.byID[u.UserID] = u
	m.byEmail[email] = u.UserID
	return u, nil
}

// Delete removes a user. Missing users are ignored.
func (m *Memory) Delete(_ context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		delete(m.byEmail, u.Email)
		delete(m.byID, userID)
	}
}

func (m *Memory) GetUserByID(_ context.Context, userID string) (tokenguard.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[userID]
	if !ok {
		return tokenguard.UserRecord{}, tokenguard.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByIdentifier(_ context.Context, identifier string) (tokenguard.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(identifier)]
	if !ok {
		return tokenguard.UserRecord{}, tokenguard.ErrUserNotFound
	}
	return m.byID[id], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
