// Package intent holds the per-message interpretation model shared by the
// language-model adapter and the deterministic rule extractor.
package intent

import (
	"strings"
	"time"
)

// Kind is the classified purpose of a message.
type Kind string

const (
	CreateTask   Kind = "create_task"
	ListTasks    Kind = "list_tasks"
	UpdateTask   Kind = "update_task"
	DeleteTask   Kind = "delete_task"
	CompleteTask Kind = "complete_task"
	Chat         Kind = "chat"
	Clarify      Kind = "clarify"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case CreateTask, ListTasks, UpdateTask, DeleteTask, CompleteTask, Chat, Clarify:
		return true
	}
	return false
}

// DueKind says whether a due instant was resolved.
type DueKind string

const (
	DueResolved DueKind = "resolved"
	DueMissing  DueKind = "missing"
	DueNone     DueKind = "none"
)

// Due is the due-date entity. For DueMissing, ISO may hold the day the user
// named at the default hour.
type Due struct {
	Kind       DueKind `json:"kind"`
	ISO        string  `json:"iso,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Time parses ISO. It returns false when ISO is empty or malformed.
func (d Due) Time() (time.Time, bool) {
	if d.ISO == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, d.ISO)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Result is the interpretation of one message. JSON names follow the
// structured-output schema sent to the model.
type Result struct {
	Intent             Kind    `json:"intent"`
	Title              string  `json:"title,omitempty"`
	Due                Due     `json:"due"`
	DurationMinutes    int     `json:"duration_minutes,omitempty"`
	NeedsClarification bool    `json:"needsClarification"`
	ClarifyQuestion    string  `json:"clarifyQuestion,omitempty"`
	ClarifyKey         string  `json:"-"`
	TitleQuery         string  `json:"titleQuery,omitempty"`
	TaskID             string  `json:"taskId,omitempty"`
	NeedsConfirmation  bool    `json:"needsConfirmation"`
	ConfirmMessage     string  `json:"confirmMessage,omitempty"`
	Confidence         float64 `json:"confidence"`

	// Filters and patch values used by list and update.
	Status   string `json:"status,omitempty"`
	Scope    string `json:"scope,omitempty"`
	NewTitle string `json:"newTitle,omitempty"`
}

// Normalize enforces the result invariants in place: unknown intents become
// chat, a resolved due without a parsable instant becomes missing, a
// clarification always carries a question or message key, and confidences
// stay in [0,1].
func (r *Result) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.TitleQuery = strings.TrimSpace(r.TitleQuery)
	r.NewTitle = strings.TrimSpace(r.NewTitle)
	r.TaskID = strings.TrimSpace(r.TaskID)

	if !r.Intent.Valid() {
		r.Intent = Chat
	}
	switch r.Due.Kind {
	case DueResolved:
		if _, ok := r.Due.Time(); !ok {
			r.Due.Kind = DueMissing
			r.Due.ISO = ""
		}
	case DueMissing:
	default:
		r.Due.Kind = DueNone
		r.Due.ISO = ""
	}
	if r.DurationMinutes < 0 {
		r.DurationMinutes = 0
	}
	if r.Intent == Clarify {
		r.NeedsClarification = true
	}
	if r.NeedsClarification && strings.TrimSpace(r.ClarifyQuestion) == "" && r.ClarifyKey == "" {
		r.ClarifyKey = "clarify"
	}
	r.Confidence = clamp01(r.Confidence)
	r.Due.Confidence = clamp01(r.Due.Confidence)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// TaskRef names an existing task by id or title.
type TaskRef struct {
	ID    string
	Title string
}

// Patch holds the new values of an update. Nil fields are left unchanged.
type Patch struct {
	Title *string
	DueAt *time.Time
}

// Entities is the typed input of the executor.
type Entities struct {
	Title           string
	Description     string
	Priority        string
	DueAt           *time.Time
	DurationMinutes int

	// TaskID, TaskTitle and TaskRef locate an existing task. Patch.Title is
	// never used as a lookup key.
	TaskID    string
	TaskTitle string
	TaskRef   *TaskRef
	Patch     *Patch

	Status    string
	Scope     string
	Confirmed bool
}

// LookupQuery is the title used to search for an existing task.
func (e Entities) LookupQuery() string {
	if q := strings.TrimSpace(e.TaskTitle); q != "" {
		return q
	}
	if e.TaskRef != nil {
		return strings.TrimSpace(e.TaskRef.Title)
	}
	return ""
}

// Entities converts r into executor input.
func (r Result) Entities() Entities {
	e := Entities{
		TaskID:          r.TaskID,
		DurationMinutes: r.DurationMinutes,
		Status:          r.Status,
		Scope:           r.Scope,
	}
	var due *time.Time
	if r.Due.Kind == DueResolved {
		if t, ok := r.Due.Time(); ok {
			due = &t
		}
	}

	switch r.Intent {
	case CreateTask:
		e.Title = r.Title
		e.DueAt = due
	case UpdateTask:
		e.TaskTitle = r.TitleQuery
		p := &Patch{DueAt: due}
		title := r.NewTitle
		if title == "" && r.TitleQuery != "" && r.Title != r.TitleQuery {
			// the model reports the new value in "title"
			title = r.Title
		}
		if title != "" {
			p.Title = &title
		}
		e.Patch = p
	case CompleteTask, DeleteTask:
		e.TaskTitle = r.TitleQuery
	}
	return e
}
