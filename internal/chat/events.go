package chat

import (
	"context"
	"time"

	"hound-taskchat/internal/action"
)

// Task event types.
const (
	EventTaskCreated   = "task.created"
	EventTaskUpdated   = "task.updated"
	EventTaskCompleted = "task.completed"
	EventTaskDeleted   = "task.deleted"
)

// TaskEvent describes a successful task mutation.
type TaskEvent struct {
	Type   string    `json:"type"`
	UserID string    `json:"userId"`
	TaskID string    `json:"taskId"`
	Title  string    `json:"title,omitempty"`
	At     time.Time `json:"at"`
}

// EventSink receives task events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	PublishTaskEvent(ctx context.Context, ev TaskEvent) error
}

// emit publishes the event for a, if any. Failures are logged only.
func (e *Engine) emit(ctx context.Context, t *turn, a action.Action) {
	if e.events == nil {
		return
	}
	ev, ok := eventFor(a)
	if !ok {
		return
	}
	ev.UserID = t.userID
	ev.At = t.now

	if err := e.events.PublishTaskEvent(ctx, ev); err != nil {
		e.logger.Warn("Failed to publish %s for task %s: %v", ev.Type, ev.TaskID, err)
	}
}

func eventFor(a action.Action) (TaskEvent, bool) {
	switch v := a.(type) {
	case action.CreateTask:
		if v.Task == nil {
			return TaskEvent{}, false
		}
		return TaskEvent{Type: EventTaskCreated, TaskID: v.Task.ID, Title: v.Task.Title}, true
	case action.UpdateTask:
		return mutationEvent(EventTaskUpdated, v.Mutation)
	case action.CompleteTask:
		return mutationEvent(EventTaskCompleted, v.Mutation)
	case action.DeleteTask:
		if !v.OK {
			return TaskEvent{}, false
		}
		return TaskEvent{Type: EventTaskDeleted, TaskID: v.TaskID, Title: v.Title}, true
	}
	return TaskEvent{}, false
}

func mutationEvent(typ string, m action.Mutation) (TaskEvent, bool) {
	if !m.OK {
		return TaskEvent{}, false
	}
	ev := TaskEvent{Type: typ, TaskID: m.TaskID}
	if m.Task != nil {
		ev.Title = m.Task.Title
	}
	return ev, true
}
