// Package executor maps an interpreted intent onto store operations.
package executor

import (
	"context"
	"errors"
	"time"

	"hound-taskchat/internal/action"
	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/match"
	"hound-taskchat/internal/store"
	"hound-taskchat/shared/logging"
)

const (
	// SourceChat tags tasks created through chat.
	SourceChat = "chat"
	// searchLimit caps reference candidates.
	searchLimit = match.DefaultLimit
)

// Executor runs intents against a task store. Storage faults never escape:
// they become failure actions.
type Executor struct {
	store  store.Store
	logger *logging.Logger
	now    func() time.Time
}

// New creates an Executor.
func New(s store.Store, logger *logging.Logger, now func() time.Time) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Executor{store: s, logger: logger, now: now}
}

// Execute runs kind with entities for userID. loc is the caller's timezone.
func (x *Executor) Execute(ctx context.Context, userID string, kind intent.Kind, e intent.Entities, loc *time.Location) action.Action {
	if loc == nil {
		loc = time.UTC
	}
	switch kind {
	case intent.CreateTask:
		return x.handleCreate(ctx, userID, e)
	case intent.ListTasks:
		return x.handleList(ctx, userID, e, loc)
	case intent.UpdateTask:
		return x.handleUpdate(ctx, userID, e, loc)
	case intent.CompleteTask:
		return x.handleComplete(ctx, userID, e, loc)
	case intent.DeleteTask:
		return x.handleDelete(ctx, userID, e)
	case intent.Chat:
		return action.Message{Key: "chat_help"}
	case intent.Clarify:
		return action.Clarify{Key: "clarify"}
	default:
		return action.NotImplemented{Intent: string(kind)}
	}
}

func (x *Executor) handleCreate(ctx context.Context, userID string, e intent.Entities) action.Action {
	if e.Title == "" {
		return action.Clarify{Key: "ask_title"}
	}
	in := store.NewTask{
		Title:       e.Title,
		Description: e.Description,
		DueAt:       e.DueAt,
		Priority:    store.Priority(e.Priority),
		Source:      SourceChat,
	}
	if e.DurationMinutes > 0 {
		d := e.DurationMinutes
		in.DurationMinutes = &d
	}

	task, err := x.store.Create(ctx, userID, in)
	if err != nil {
		x.logger.Error("Failed to create task for %s: %v", userID, err)
		return action.Message{Key: "save_failed"}
	}
	return action.CreateTask{Task: task}
}

func (x *Executor) handleList(ctx context.Context, userID string, e intent.Entities, loc *time.Location) action.Action {
	status := store.Status(e.Status)
	switch status {
	case store.StatusTodo, store.StatusDone, store.StatusAll:
	default:
		status = store.StatusTodo
	}
	scope := store.Scope(e.Scope)
	if scope != store.ScopeToday {
		scope = store.ScopeAll
	}

	tasks, err := store.ListScoped(ctx, x.store, userID, status, scope, loc, x.now())
	if err != nil {
		x.logger.Error("Failed to list tasks for %s: %v", userID, err)
		return action.Message{Key: "action_failed"}
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return action.ListTasks{Tasks: tasks, Status: status, Scope: scope}
}

func (x *Executor) handleUpdate(ctx context.Context, userID string, e intent.Entities, loc *time.Location) action.Action {
	if !hasReference(e) {
		return action.Clarify{Key: "ask_update_query"}
	}
	var patch store.Patch
	if e.Patch != nil {
		patch.Title = e.Patch.Title
		patch.DueAt = e.Patch.DueAt
	}
	if e.DurationMinutes > 0 {
		d := e.DurationMinutes
		patch.DurationMinutes = &d
	}
	if patch.Title == nil && patch.DueAt == nil && patch.DurationMinutes == nil {
		return action.Clarify{Key: "ask_update_patch"}
	}

	taskID, clarify := x.resolve(ctx, userID, e, store.StatusAll, loc, "ask_update_query")
	if clarify != nil {
		return *clarify
	}
	return action.UpdateTask{Mutation: x.apply(ctx, userID, taskID, patch)}
}

func (x *Executor) handleComplete(ctx context.Context, userID string, e intent.Entities, loc *time.Location) action.Action {
	taskID, clarify := x.resolve(ctx, userID, e, store.StatusTodo, loc, "ask_complete_query")
	if clarify != nil {
		return *clarify
	}
	done := store.StatusDone
	return action.CompleteTask{Mutation: x.apply(ctx, userID, taskID, store.Patch{Status: &done})}
}

// handleDelete only deletes confirmed requests for a known id. The chat
// engine's confirmation flow supplies both.
func (x *Executor) handleDelete(ctx context.Context, userID string, e intent.Entities) action.Action {
	if e.TaskID == "" {
		return action.Clarify{Key: "ask_delete_query"}
	}
	if !e.Confirmed {
		title := e.LookupQuery()
		if task, err := x.store.Get(ctx, userID, e.TaskID); err == nil {
			title = task.Title
		}
		return action.Clarify{
			Key:               "delete_confirm",
			Params:            map[string]string{"title": title},
			NeedsConfirmation: true,
		}
	}

	title := ""
	if task, err := x.store.Get(ctx, userID, e.TaskID); err == nil {
		title = task.Title
	}
	ok, err := x.store.Delete(ctx, userID, e.TaskID)
	if err != nil {
		x.logger.Error("Failed to delete task %s for %s: %v", e.TaskID, userID, err)
		return action.DeleteTask{OK: false, Reason: action.ReasonStorage, TaskID: e.TaskID}
	}
	if !ok {
		return action.DeleteTask{OK: false, Reason: action.ReasonNotFound, TaskID: e.TaskID}
	}
	return action.DeleteTask{OK: true, TaskID: e.TaskID, Title: title}
}

// resolve finds the task an update or completion refers to. It returns a
// clarification when the reference is missing or matches zero or several
// tasks.
func (x *Executor) resolve(ctx context.Context, userID string, e intent.Entities, status store.Status, loc *time.Location, askKey string) (string, *action.Clarify) {
	if e.TaskID != "" {
		return e.TaskID, nil
	}
	if e.TaskRef != nil && e.TaskRef.ID != "" {
		return e.TaskRef.ID, nil
	}
	q := e.LookupQuery()
	if q == "" {
		return "", &action.Clarify{Key: askKey}
	}

	cands, err := store.FuzzySearch(ctx, x.store, userID, q, searchLimit, status, store.ScopeAll, loc, x.now())
	if err != nil {
		x.logger.Error("Failed to search tasks for %s: %v", userID, err)
		return "", &action.Clarify{Key: "not_found"}
	}
	switch len(cands) {
	case 0:
		return "", &action.Clarify{Key: "not_found"}
	case 1:
		return cands[0].TaskID, nil
	default:
		return "", &action.Clarify{Key: "AMBIGUOUS_PICK_ONE", Candidates: cands}
	}
}

func hasReference(e intent.Entities) bool {
	return e.TaskID != "" || (e.TaskRef != nil && e.TaskRef.ID != "") || e.LookupQuery() != ""
}

func (x *Executor) apply(ctx context.Context, userID, taskID string, p store.Patch) action.Mutation {
	task, err := x.store.Update(ctx, userID, taskID, p)
	switch {
	case err == nil:
		return action.Mutation{OK: true, TaskID: taskID, Task: task}
	case errors.Is(err, store.ErrNotFound):
		return action.Mutation{OK: false, Reason: action.ReasonNotFound, TaskID: taskID}
	case errors.Is(err, store.ErrInvalidTitle):
		return action.Mutation{OK: false, Reason: action.ReasonInvalidTitle, TaskID: taskID}
	default:
		x.logger.Error("Failed to update task %s for %s: %v", taskID, userID, err)
		return action.Mutation{OK: false, Reason: action.ReasonStorage, TaskID: taskID}
	}
}
