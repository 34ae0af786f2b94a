package testhelpers

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"payment-service/internal/model"
	"payment-service/internal/store"
)

// MemoryAudit is an audit.Log keeping entries in memory.
type MemoryAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	Err     error
}

func (a *MemoryAudit) Record(ctx context.Context, entry model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *MemoryAudit) Entries(action string) []model.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []model.AuditEntry
	for _, e := range a.entries {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// MemoryUsers is a user directory backed by a map.
type MemoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func NewMemoryUsers(users ...*model.User) *MemoryUsers {
	m := &MemoryUsers{users: map[uuid.UUID]*model.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MemoryUsers) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func NewUser(role string) *model.User {
	id := uuid.New()
	return &model.User{ID: id, Email: id.String() + "@example.com", Role: role}
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
