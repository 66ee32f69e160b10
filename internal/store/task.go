// Package store is the per-user task storage capability with in-memory and
// SQL (PostgreSQL, SQLite) backends.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "hound-taskchat/shared/errors"
)

var (
	// ErrNotFound matches every task lookup miss with errors.Is.
	ErrNotFound     error = &apperrors.NotFoundError{Resource: "task"}
	ErrInvalidTitle       = errors.New("task title is required")
)

func notFound(taskID string) error {
	return &apperrors.NotFoundError{Resource: "task", ID: taskID}
}

// Status of a task.
type Status string

const (
	StatusTodo Status = "todo"
	StatusDone Status = "done"
	// StatusAll is a list filter only.
	StatusAll Status = "all"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a stored task. Timestamps are epoch seconds.
type Task struct {
	ID              string   `json:"id"`
	UserID          string   `json:"userId"`
	Title           string   `json:"title"`
	Status          Status   `json:"status"`
	DueAt           *int64   `json:"dueAt,omitempty"`
	Description     string   `json:"description,omitempty"`
	Priority        Priority `json:"priority"`
	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	CreatedAt       int64    `json:"createdAt"`
	UpdatedAt       int64    `json:"updatedAt"`
	Source          string   `json:"source,omitempty"`
}

// NewTask is the input of Create.
type NewTask struct {
	Title           string
	Description     string
	DueAt           *time.Time
	Priority        Priority
	Source          string
	DurationMinutes *int
}

// Patch lists the fields Update changes. Nil fields are kept.
type Patch struct {
	Title           *string
	Description     *string
	Status          *Status
	DueAt           *time.Time
	Priority        *Priority
	DurationMinutes *int
}

// ListFilter selects tasks by status. An empty status or StatusAll lists all.
type ListFilter struct {
	Status Status
}

// Store is implemented by every backend. All operations are scoped to one
// user; a task of another user is reported as ErrNotFound.
type Store interface {
	Create(ctx context.Context, userID string, in NewTask) (*Task, error)
	Get(ctx context.Context, userID, taskID string) (*Task, error)
	// List returns tasks in creation order.
	List(ctx context.Context, userID string, f ListFilter) ([]*Task, error)
	Update(ctx context.Context, userID, taskID string, p Patch) (*Task, error)
	Delete(ctx context.Context, userID, taskID string) (bool, error)
	// Search is a plain substring match on titles.
	Search(ctx context.Context, userID, query string, limit int) ([]*Task, error)
}

// IdempotencyStore caches responses of operations keyed by an idempotency key.
type IdempotencyStore interface {
	// CheckIdempotencyKey returns the cached response, or nil if none.
	CheckIdempotencyKey(ctx context.Context, key string) ([]byte, error)
	StoreIdempotencyKey(ctx context.Context, key string, response interface{}) error
}

// Backend is a Store that also caches idempotent responses.
type Backend interface {
	Store
	IdempotencyStore
	Close() error
}

func normalizeNew(in NewTask) (NewTask, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, ErrInvalidTitle
	}
	switch in.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		in.Priority = PriorityMedium
	}
	return in, nil
}

func epochPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func matchesStatus(t *Task, s Status) bool {
	return s == "" || s == StatusAll || t.Status == s
}

func clone(t *Task) *Task {
	c := *t
	if t.DueAt != nil {
		v := *t.DueAt
		c.DueAt = &v
	}
	if t.DurationMinutes != nil {
		v := *t.DurationMinutes
		c.DurationMinutes = &v
	}
	return &c
}
