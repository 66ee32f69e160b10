package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"hound-taskchat/internal/action"
	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/store"
)

var (
	hebron = time.FixedZone("Asia/Hebron", 3*60*60)
	now    = time.Date(2026, 10, 15, 7, 30, 0, 0, time.UTC)
)

func fixedNow() time.Time { return now }

func newExecutor() (*Executor, *store.MemoryStore) {
	s := store.NewMemory(fixedNow)
	return New(s, nil, fixedNow), s
}

func seed(t *testing.T, s store.Store, titles ...string) []*store.Task {
	t.Helper()
	var out []*store.Task
	for _, title := range titles {
		task, err := s.Create(context.Background(), "u1", store.NewTask{Title: title})
		if err != nil {
			t.Fatalf("failed to seed %q: %v", title, err)
		}
		out = append(out, task)
	}
	return out
}

func strPtr(s string) *string { return &s }

// failingStore fails every write.
type failingStore struct {
	*store.MemoryStore
}

var errDown = errors.New("database is down")

func (f failingStore) Create(context.Context, string, store.NewTask) (*store.Task, error) {
	return nil, errDown
}

func (f failingStore) Update(context.Context, string, string, store.Patch) (*store.Task, error) {
	return nil, errDown
}

func (f failingStore) Delete(context.Context, string, string) (bool, error) {
	return false, errDown
}

func (f failingStore) List(context.Context, string, store.ListFilter) ([]*store.Task, error) {
	return nil, errDown
}

// =============================================================================
// Create Tests
// =============================================================================

func TestCreate(t *testing.T) {
	x, _ := newExecutor()
	due := time.Date(2026, 10, 16, 18, 0, 0, 0, hebron)

	a := x.Execute(context.Background(), "u1", intent.CreateTask, intent.Entities{Title: "Buy milk", DueAt: &due, DurationMinutes: 30}, hebron)
	created, ok := a.(action.CreateTask)
	if !ok {
		t.Fatalf("expected CreateTask, got %T", a)
	}
	if created.Task.Title != "Buy milk" {
		t.Errorf("expected title 'Buy milk', got %s", created.Task.Title)
	}
	if created.Task.Source != SourceChat {
		t.Errorf("expected source chat, got %s", created.Task.Source)
	}
	if created.Task.DueAt == nil || *created.Task.DueAt != due.Unix() {
		t.Errorf("expected dueAt %d, got %v", due.Unix(), created.Task.DueAt)
	}
	if created.Task.DurationMinutes == nil || *created.Task.DurationMinutes != 30 {
		t.Errorf("expected duration 30, got %v", created.Task.DurationMinutes)
	}
}

func TestCreate_MissingTitle(t *testing.T) {
	x, _ := newExecutor()
	a := x.Execute(context.Background(), "u1", intent.CreateTask, intent.Entities{}, hebron)
	if c, ok := a.(action.Clarify); !ok || c.Key != "ask_title" {
		t.Errorf("expected ask_title clarify, got %#v", a)
	}
}

func TestCreate_StorageFailure(t *testing.T) {
	x := New(failingStore{store.NewMemory(fixedNow)}, nil, fixedNow)
	a := x.Execute(context.Background(), "u1", intent.CreateTask, intent.Entities{Title: "x"}, hebron)
	if m, ok := a.(action.Message); !ok || m.Key != "save_failed" {
		t.Errorf("expected save_failed message, got %#v", a)
	}
}

// =============================================================================
// List Tests
// =============================================================================

func TestList_Defaults(t *testing.T) {
	x, s := newExecutor()
	tasks := seed(t, s, "Task 1", "Task 2")
	done := store.StatusDone
	s.Update(context.Background(), "u1", tasks[1].ID, store.Patch{Status: &done})

	a := x.Execute(context.Background(), "u1", intent.ListTasks, intent.Entities{}, hebron)
	list, ok := a.(action.ListTasks)
	if !ok {
		t.Fatalf("expected ListTasks, got %T", a)
	}
	if list.Status != store.StatusTodo || list.Scope != store.ScopeAll {
		t.Errorf("expected todo/all filters, got %s/%s", list.Status, list.Scope)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].Title != "Task 1" {
		t.Errorf("expected only Task 1, got %+v", list.Tasks)
	}

	a = x.Execute(context.Background(), "u1", intent.ListTasks, intent.Entities{Status: "all"}, hebron)
	if list := a.(action.ListTasks); len(list.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(list.Tasks))
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	x, _ := newExecutor()
	a := x.Execute(context.Background(), "u1", intent.ListTasks, intent.Entities{}, hebron)
	if list := a.(action.ListTasks); list.Tasks == nil {
		t.Error("expected an empty, non-nil task list")
	}
}

func TestList_Today(t *testing.T) {
	x, s := newExecutor()
	ctx := context.Background()
	today := time.Date(2026, 10, 15, 20, 0, 0, 0, hebron)
	tomorrow := today.AddDate(0, 0, 1)
	s.Create(ctx, "u1", store.NewTask{Title: "today", DueAt: &today})
	s.Create(ctx, "u1", store.NewTask{Title: "tomorrow", DueAt: &tomorrow})
	s.Create(ctx, "u1", store.NewTask{Title: "undated"})

	a := x.Execute(ctx, "u1", intent.ListTasks, intent.Entities{Scope: "today"}, hebron)
	list := a.(action.ListTasks)
	if len(list.Tasks) != 1 || list.Tasks[0].Title != "today" {
		t.Errorf("expected only today's task, got %+v", list.Tasks)
	}
}

func TestList_StorageFailure(t *testing.T) {
	x := New(failingStore{store.NewMemory(fixedNow)}, nil, fixedNow)
	a := x.Execute(context.Background(), "u1", intent.ListTasks, intent.Entities{}, hebron)
	if m, ok := a.(action.Message); !ok || m.Key != "action_failed" {
		t.Errorf("expected action_failed message, got %#v", a)
	}
}

// =============================================================================
// Update Tests
// =============================================================================

func TestUpdate_ByID(t *testing.T) {
	x, s := newExecutor()
	task := seed(t, s, "Old title")[0]

	a := x.Execute(context.Background(), "u1", intent.UpdateTask, intent.Entities{
		TaskID: task.ID,
		Patch:  &intent.Patch{Title: strPtr("New title")},
	}, hebron)
	upd, ok := a.(action.UpdateTask)
	if !ok {
		t.Fatalf("expected UpdateTask, got %T", a)
	}
	if !upd.OK || upd.Task.ID != task.ID || upd.Task.Title != "New title" {
		t.Errorf("expected updated task, got %+v", upd.Mutation)
	}
}

func TestUpdate_MultipleCandidates(t *testing.T) {
	x, s := newExecutor()
	seed(t, s, "اجتماع الفريق", "اجتماع العميل")

	// the new title must not be used to look the task up
	a := x.Execute(context.Background(), "u1", intent.UpdateTask, intent.Entities{
		TaskRef: &intent.TaskRef{Title: "اجتماع"},
		Patch:   &intent.Patch{Title: strPtr("اجتماع (محدث)")},
	}, hebron)
	c, ok := a.(action.Clarify)
	if !ok {
		t.Fatalf("expected Clarify, got %T", a)
	}
	if c.Key != "AMBIGUOUS_PICK_ONE" {
		t.Errorf("expected AMBIGUOUS_PICK_ONE, got %s", c.Key)
	}
	if len(c.Candidates) != 2 || c.Candidates[0].TaskID == c.Candidates[1].TaskID {
		t.Errorf("expected 2 distinct candidates, got %+v", c.Candidates)
	}
}

func TestUpdate_SingleMatchExecutes(t *testing.T) {
	x, s := newExecutor()
	tasks := seed(t, s, "اشتري حليب", "اجتماع الفريق")
	due := time.Date(2026, 10, 16, 9, 0, 0, 0, hebron)

	a := x.Execute(context.Background(), "u1", intent.UpdateTask, intent.Entities{
		TaskTitle: "حليب",
		Patch:     &intent.Patch{DueAt: &due},
	}, hebron)
	upd, ok := a.(action.UpdateTask)
	if !ok || !upd.OK {
		t.Fatalf("expected successful update, got %#v", a)
	}
	if upd.TaskID != tasks[0].ID {
		t.Errorf("expected %s, got %s", tasks[0].ID, upd.TaskID)
	}
}

func TestUpdate_Clarifications(t *testing.T) {
	x, s := newExecutor()
	seed(t, s, "اشتري حليب")

	tests := []struct {
		name     string
		entities intent.Entities
		key      string
	}{
		{"no reference", intent.Entities{Patch: &intent.Patch{Title: strPtr("x")}}, "ask_update_query"},
		{"patch title is not a reference", intent.Entities{Patch: &intent.Patch{Title: strPtr("حليب")}}, "ask_update_query"},
		{"no patch", intent.Entities{TaskTitle: "حليب"}, "ask_update_patch"},
		{"no match", intent.Entities{TaskTitle: "قهوة", Patch: &intent.Patch{Title: strPtr("x")}}, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := x.Execute(context.Background(), "u1", intent.UpdateTask, tt.entities, hebron)
			c, ok := a.(action.Clarify)
			if !ok || c.Key != tt.key {
				t.Errorf("expected %s clarify, got %#v", tt.key, a)
			}
		})
	}
}

func TestUpdate_NotFoundAndStorageFailure(t *testing.T) {
	x, _ := newExecutor()
	a := x.Execute(context.Background(), "u1", intent.UpdateTask, intent.Entities{TaskID: "missing", Patch: &intent.Patch{Title: strPtr("x")}}, hebron)
	upd := a.(action.UpdateTask)
	if upd.OK || upd.Reason != action.ReasonNotFound {
		t.Errorf("expected not_found, got %+v", upd.Mutation)
	}

	x = New(failingStore{store.NewMemory(fixedNow)}, nil, fixedNow)
	a = x.Execute(context.Background(), "u1", intent.UpdateTask, intent.Entities{TaskID: "t1", Patch: &intent.Patch{Title: strPtr("x")}}, hebron)
	upd = a.(action.UpdateTask)
	if upd.OK || upd.Reason != action.ReasonStorage {
		t.Errorf("expected storage_error, got %+v", upd.Mutation)
	}
}

// =============================================================================
// Complete Tests
// =============================================================================

func TestComplete_ByID(t *testing.T) {
	x, s := newExecutor()
	task := seed(t, s, "مهمة للتجربة")[0]

	a := x.Execute(context.Background(), "u1", intent.CompleteTask, intent.Entities{TaskID: task.ID}, hebron)
	done, ok := a.(action.CompleteTask)
	if !ok {
		t.Fatalf("expected CompleteTask, got %T", a)
	}
	if !done.OK || done.Task.Status != store.StatusDone {
		t.Errorf("expected completed task, got %+v", done.Mutation)
	}
}

func TestComplete_MultipleCandidates(t *testing.T) {
	x, s := newExecutor()
	seed(t, s, "قراءة كتاب", "قراءة مقال")

	a := x.Execute(context.Background(), "u1", intent.CompleteTask, intent.Entities{TaskRef: &intent.TaskRef{Title: "قراءة"}}, hebron)
	c, ok := a.(action.Clarify)
	if !ok {
		t.Fatalf("expected Clarify, got %T", a)
	}
	if len(c.Candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(c.Candidates))
	}
}

func TestComplete_IgnoresDoneTasks(t *testing.T) {
	x, s := newExecutor()
	tasks := seed(t, s, "قراءة كتاب", "قراءة مقال")
	done := store.StatusDone
	s.Update(context.Background(), "u1", tasks[0].ID, store.Patch{Status: &done})

	a := x.Execute(context.Background(), "u1", intent.CompleteTask, intent.Entities{TaskTitle: "قراءة"}, hebron)
	c, ok := a.(action.CompleteTask)
	if !ok || c.TaskID != tasks[1].ID {
		t.Errorf("expected the open task to be completed, got %#v", a)
	}
}

func TestComplete_MissingQuery(t *testing.T) {
	x, _ := newExecutor()
	a := x.Execute(context.Background(), "u1", intent.CompleteTask, intent.Entities{}, hebron)
	if c, ok := a.(action.Clarify); !ok || c.Key != "ask_complete_query" {
		t.Errorf("expected ask_complete_query, got %#v", a)
	}
}

// =============================================================================
// Delete Tests
// =============================================================================

func TestDelete_RequiresID(t *testing.T) {
	x, s := newExecutor()
	seed(t, s, "اشتري حليب")

	a := x.Execute(context.Background(), "u1", intent.DeleteTask, intent.Entities{TaskTitle: "حليب", Confirmed: true}, hebron)
	if c, ok := a.(action.Clarify); !ok || c.Key != "ask_delete_query" {
		t.Errorf("expected ask_delete_query, got %#v", a)
	}
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	x, s := newExecutor()
	task := seed(t, s, "اشتري حليب")[0]

	a := x.Execute(context.Background(), "u1", intent.DeleteTask, intent.Entities{TaskID: task.ID}, hebron)
	c, ok := a.(action.Clarify)
	if !ok {
		t.Fatalf("expected Clarify, got %T", a)
	}
	if !c.NeedsConfirmation || c.Params["title"] != "اشتري حليب" {
		t.Errorf("expected confirmation prompt with title, got %+v", c)
	}
	if _, err := s.Get(context.Background(), "u1", task.ID); err != nil {
		t.Errorf("expected task to survive an unconfirmed delete, got %v", err)
	}
}

func TestDelete_Confirmed(t *testing.T) {
	x, s := newExecutor()
	task := seed(t, s, "To delete")[0]

	a := x.Execute(context.Background(), "u1", intent.DeleteTask, intent.Entities{TaskID: task.ID, Confirmed: true}, hebron)
	del, ok := a.(action.DeleteTask)
	if !ok {
		t.Fatalf("expected DeleteTask, got %T", a)
	}
	if !del.OK || del.TaskID != task.ID || del.Title != "To delete" {
		t.Errorf("expected successful delete, got %+v", del)
	}

	a = x.Execute(context.Background(), "u1", intent.DeleteTask, intent.Entities{TaskID: task.ID, Confirmed: true}, hebron)
	if del := a.(action.DeleteTask); del.OK || del.Reason != action.ReasonNotFound {
		t.Errorf("expected not_found on second delete, got %+v", del)
	}
}

func TestDelete_StorageFailure(t *testing.T) {
	x := New(failingStore{store.NewMemory(fixedNow)}, nil, fixedNow)
	a := x.Execute(context.Background(), "u1", intent.DeleteTask, intent.Entities{TaskID: "t1", Confirmed: true}, hebron)
	if del := a.(action.DeleteTask); del.OK || del.Reason != action.ReasonStorage {
		t.Errorf("expected storage_error, got %+v", del)
	}
}

// =============================================================================
// Other Intents
// =============================================================================

func TestChatAndUnknownIntents(t *testing.T) {
	x, _ := newExecutor()
	if m, ok := x.Execute(context.Background(), "u1", intent.Chat, intent.Entities{}, hebron).(action.Message); !ok || m.Key != "chat_help" {
		t.Error("expected chat_help message for chat")
	}
	if _, ok := x.Execute(context.Background(), "u1", intent.Clarify, intent.Entities{}, hebron).(action.Clarify); !ok {
		t.Error("expected clarify action for clarify")
	}
	if n, ok := x.Execute(context.Background(), "u1", intent.Kind("nudge"), intent.Entities{}, hebron).(action.NotImplemented); !ok || n.Intent != "nudge" {
		t.Error("expected not_implemented for an unknown intent")
	}
}
