package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps tasks in process memory. It is the default backend and
// the one used by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string][]*Task
	idem  map[string][]byte
	now   func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		tasks: make(map[string][]*Task),
		idem:  make(map[string][]byte),
		now:   now,
	}
}

func (m *MemoryStore) Create(_ context.Context, userID string, in NewTask) (*Task, error) {
	in, err := normalizeNew(in)
	if err != nil {
		return nil, err
	}
	now := m.now().Unix()
	t := &Task{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           in.Title,
		Status:          StatusTodo,
		DueAt:           epochPtr(in.DueAt),
		Description:     in.Description,
		Priority:        in.Priority,
		DurationMinutes: in.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Source:          in.Source,
	}

	m.mu.Lock()
	m.tasks[userID] = append(m.tasks[userID], clone(t))
	m.mu.Unlock()
	return t, nil
}

func (m *MemoryStore) Get(_ context.Context, userID, taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, t := m.find(userID, taskID); t != nil {
		return clone(t), nil
	}
	return nil, notFound(taskID)
}

func (m *MemoryStore) List(_ context.Context, userID string, f ListFilter) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks[userID] {
		if matchesStatus(t, f.Status) {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, userID, taskID string, p Patch) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, t := m.find(userID, taskID)
	if t == nil {
		return nil, notFound(taskID)
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, ErrInvalidTitle
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.DueAt != nil {
		t.DueAt = epochPtr(p.DueAt)
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DurationMinutes != nil {
		v := *p.DurationMinutes
		t.DurationMinutes = &v
	}
	t.UpdatedAt = m.now().Unix()
	return clone(t), nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, t := m.find(userID, taskID)
	if t == nil {
		return false, nil
	}
	list := m.tasks[userID]
	m.tasks[userID] = append(list[:i:i], list[i+1:]...)
	return true, nil
}

func (m *MemoryStore) Search(_ context.Context, userID, query string, limit int) ([]*Task, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks[userID] {
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, clone(t))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// CheckIdempotencyKey implements IdempotencyStore.
func (m *MemoryStore) CheckIdempotencyKey(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idem[key], nil
}

// StoreIdempotencyKey implements IdempotencyStore. The first response wins.
func (m *MemoryStore) StoreIdempotencyKey(_ context.Context, key string, response interface{}) error {
	b, err := json.Marshal(response)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idem[key]; !ok {
		m.idem[key] = b
	}
	return nil
}

// Close implements Backend.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) find(userID, taskID string) (int, *Task) {
	for i, t := range m.tasks[userID] {
		if t.ID == taskID {
			return i, t
		}
	}
	return -1, nil
}
