// Package conversation keeps short-lived, per-conversation memory for
// multi-turn flows.
package conversation

import (
	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/match"
)

// Stage is a step of the delete flow.
type Stage string

const (
	StageNone            Stage = ""
	StageAwaitingQuery   Stage = "awaiting_query"
	StageAwaitingChoice  Stage = "awaiting_choice"
	StageAwaitingConfirm Stage = "awaiting_confirm"
)

// OpDelete is the only multi-step operation.
const OpDelete = "delete_task"

// Fields a single-step follow-up can wait for.
const (
	FieldDueTime    = "due_time"
	FieldTitle      = "title"
	FieldTaskChoice = "task_choice"
)

// PendingOp is an in-progress delete flow.
type PendingOp struct {
	Type           string
	Stage          Stage
	Candidates     []match.Candidate
	SelectedTaskID string
	Query          string
	// Reprompted is set after one invalid answer in awaiting_choice.
	Reprompted bool
}

// Pending is a single-step clarification: the next message fills
// ExpectedField of a captured intent.
type Pending struct {
	Intent        intent.Kind
	ExpectedField string
	Entities      intent.Entities
	Candidates    []match.Candidate
	Reprompted    bool
}

// State is the memory of one conversation.
type State struct {
	Pending   *Pending
	PendingOp *PendingOp

	// Flat mirror of PendingOp kept for older readers.
	Mode           string
	Step           Stage
	DeleteQuery    string
	Candidates     []match.Candidate
	SelectedTaskID string
}

// Idle reports whether nothing is pending.
func (s State) Idle() bool {
	return s.Pending == nil && s.PendingOp == nil
}

// Stage returns the delete-flow stage, StageNone when no flow is active.
func (s State) Stage() Stage {
	if s.PendingOp == nil {
		return StageNone
	}
	return s.PendingOp.Stage
}

func (s State) clone() State {
	out := s
	out.Candidates = cloneCandidates(s.Candidates)
	if s.PendingOp != nil {
		op := *s.PendingOp
		op.Candidates = cloneCandidates(op.Candidates)
		out.PendingOp = &op
	}
	if s.Pending != nil {
		p := *s.Pending
		p.Candidates = cloneCandidates(p.Candidates)
		out.Pending = &p
	}
	return out
}

func cloneCandidates(in []match.Candidate) []match.Candidate {
	if in == nil {
		return nil
	}
	return append([]match.Candidate(nil), in...)
}

func (s *State) mirrorOp() {
	if s.PendingOp == nil {
		s.Mode, s.Step, s.DeleteQuery, s.Candidates, s.SelectedTaskID = "", StageNone, "", nil, ""
		return
	}
	s.Mode = "delete"
	s.Step = s.PendingOp.Stage
	s.DeleteQuery = s.PendingOp.Query
	s.Candidates = cloneCandidates(s.PendingOp.Candidates)
	s.SelectedTaskID = s.PendingOp.SelectedTaskID
}
