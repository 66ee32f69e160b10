// Package action defines the result of executing an intent. Each kind has its
// own payload type; Describe flattens one into the {type, payload} wire shape.
package action

import (
	"hound-taskchat/internal/match"
	"hound-taskchat/internal/store"
)

// Type names an action on the wire.
type Type string

const (
	TypeCreateTask     Type = "create_task"
	TypeListTasks      Type = "list_tasks"
	TypeUpdateTask     Type = "update_task"
	TypeCompleteTask   Type = "complete_task"
	TypeDeleteTask     Type = "delete_task"
	TypeClarify        Type = "clarify"
	TypeMessage        Type = "message"
	TypeNotImplemented Type = "not_implemented"
)

// Failure reasons carried by mutation results.
const (
	ReasonNotFound     = "not_found"
	ReasonInvalidTitle = "invalid_title"
	ReasonStorage      = "storage_error"
)

// Action is implemented only by the payload types of this package.
type Action interface {
	Type() Type
	isAction()
}

// CreateTask reports a stored task.
type CreateTask struct {
	Task *store.Task `json:"task"`
}

// ListTasks carries a listing and the filters that produced it.
type ListTasks struct {
	Tasks  []*store.Task `json:"tasks"`
	Status store.Status  `json:"status"`
	Scope  store.Scope   `json:"scope"`
}

// Mutation is the result of an update or a completion.
type Mutation struct {
	OK     bool        `json:"ok"`
	Reason string      `json:"reason,omitempty"`
	TaskID string      `json:"taskId,omitempty"`
	Task   *store.Task `json:"task,omitempty"`
}

// UpdateTask reports an update.
type UpdateTask struct{ Mutation }

// CompleteTask reports a completion.
type CompleteTask struct{ Mutation }

// DeleteTask reports a confirmed delete.
type DeleteTask struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	TaskID string `json:"taskId"`
	Title  string `json:"title,omitempty"`
}

// Clarify asks the user for more input. Key is a message key; Message, when
// set, is text from the model that replaces the keyed message.
type Clarify struct {
	Key               string            `json:"key"`
	Params            map[string]string `json:"params,omitempty"`
	Message           string            `json:"message,omitempty"`
	Candidates        []match.Candidate `json:"candidates,omitempty"`
	NeedsConfirmation bool              `json:"needsConfirmation,omitempty"`
}

// Message is an informational reply with no pending question.
type Message struct {
	Key    string            `json:"key"`
	Params map[string]string `json:"params,omitempty"`
}

// NotImplemented is returned for intents the executor has no branch for.
type NotImplemented struct {
	Intent string `json:"intent"`
}

func (CreateTask) Type() Type     { return TypeCreateTask }
func (ListTasks) Type() Type      { return TypeListTasks }
func (UpdateTask) Type() Type     { return TypeUpdateTask }
func (CompleteTask) Type() Type   { return TypeCompleteTask }
func (DeleteTask) Type() Type     { return TypeDeleteTask }
func (Clarify) Type() Type        { return TypeClarify }
func (Message) Type() Type        { return TypeMessage }
func (NotImplemented) Type() Type { return TypeNotImplemented }

func (CreateTask) isAction()     {}
func (ListTasks) isAction()      {}
func (UpdateTask) isAction()     {}
func (CompleteTask) isAction()   {}
func (DeleteTask) isAction()     {}
func (Clarify) isAction()        {}
func (Message) isAction()        {}
func (NotImplemented) isAction() {}

// Descriptor is the wire form of an action. Payload holds the concrete
// action when built by Describe and decoded JSON when read back.
type Descriptor struct {
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload"`
}

// Describe converts a into its wire form.
func Describe(a Action) Descriptor {
	return Descriptor{Type: a.Type(), Payload: a}
}

// CandidatesOf returns the candidate list attached to a, if any.
func CandidatesOf(a Action) []match.Candidate {
	if c, ok := a.(Clarify); ok {
		return c.Candidates
	}
	return nil
}
