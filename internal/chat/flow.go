package chat

import (
	"context"
	"errors"
	"time"

	"hound-taskchat/internal/action"
	"hound-taskchat/internal/conversation"
	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/match"
	"hound-taskchat/internal/store"
	"hound-taskchat/internal/temporal"
)

// Delete flow:
//
//	none            --delete w/ query--> awaiting_query | awaiting_confirm | awaiting_choice
//	awaiting_query  --any text---------> same search branch
//	awaiting_choice --valid choice-----> awaiting_confirm
//	awaiting_choice --invalid----------> awaiting_choice (once), then none
//	awaiting_confirm --yes-------------> none, task deleted
//	awaiting_confirm --no--------------> none
//	awaiting_confirm --other-----------> awaiting_confirm
//	any             --cancel-----------> none

func (e *Engine) startDelete(ctx context.Context, t *turn, query string) action.Action {
	if query == "" {
		e.setDelete(t, nil, conversation.StageAwaitingQuery, "", "")
		return action.Clarify{Key: "ask_delete_query"}
	}
	return e.searchDelete(ctx, t, query)
}

func (e *Engine) searchDelete(ctx context.Context, t *turn, query string) action.Action {
	cands, err := store.FuzzySearch(ctx, e.store, t.userID, query, match.DefaultLimit, store.StatusAll, store.ScopeAll, t.loc, t.now)
	if err != nil {
		e.logger.Error("Failed to search tasks for %s: %v", t.userID, err)
		e.states.ClearDeletePending(t.key)
		return action.Message{Key: "action_failed"}
	}

	switch len(cands) {
	case 0:
		e.setDelete(t, nil, conversation.StageAwaitingQuery, "", query)
		return action.Clarify{Key: "delete_no_match", Params: map[string]string{"query": query}}
	case 1:
		if !match.Strong(cands) {
			e.logger.Debug("Single weak delete match %.2f for %q", cands[0].Score, query)
		}
		return e.askConfirm(t, cands[0], query)
	default:
		e.setDelete(t, cands, conversation.StageAwaitingChoice, "", query)
		return action.Clarify{Key: "delete_pick_one", Candidates: cands}
	}
}

func (e *Engine) confirmByID(ctx context.Context, t *turn, taskID string) action.Action {
	task, err := e.store.Get(ctx, t.userID, taskID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Error("Failed to load task %s for %s: %v", taskID, t.userID, err)
		}
		e.setDelete(t, nil, conversation.StageAwaitingQuery, "", "")
		return action.Clarify{Key: "not_found"}
	}
	return e.askConfirm(t, match.Candidate{TaskID: task.ID, Title: task.Title, Score: 1}, task.Title)
}

func (e *Engine) askConfirm(t *turn, c match.Candidate, query string) action.Action {
	one := []match.Candidate{c}
	e.setDelete(t, one, conversation.StageAwaitingConfirm, c.TaskID, query)
	return action.Clarify{
		Key:               "delete_confirm",
		Params:            map[string]string{"title": c.Title},
		Candidates:        one,
		NeedsConfirmation: true,
	}
}

func (e *Engine) setDelete(t *turn, cands []match.Candidate, stage conversation.Stage, selected, query string) {
	if err := e.states.SetDeletePending(t.key, cands, stage, selected, query); err != nil {
		// only reachable through a programming error in this file
		e.logger.Error("Rejected delete transition to %s: %v", stage, err)
	}
}

func (e *Engine) continueDelete(ctx context.Context, t *turn, op *conversation.PendingOp) action.Action {
	switch op.Stage {
	case conversation.StageAwaitingQuery:
		q := e.deleteQuery(t)
		if q == "" {
			return action.Clarify{Key: "ask_delete_query"}
		}
		return e.searchDelete(ctx, t, q)

	case conversation.StageAwaitingChoice:
		if c, ok := pickCandidate(t.message, op.Candidates); ok {
			return e.askConfirm(t, c, op.Query)
		}
		if op.Reprompted {
			e.states.ClearDeletePending(t.key)
			return action.Message{Key: "choice_gave_up"}
		}
		e.states.MarkReprompted(t.key)
		return action.Clarify{Key: "pick_again", Candidates: op.Candidates}

	case conversation.StageAwaitingConfirm:
		switch answerOf(t.message) {
		case answerYes:
			a := e.exec.Execute(ctx, t.userID, intent.DeleteTask, intent.Entities{
				TaskID:    op.SelectedTaskID,
				Confirmed: true,
			}, t.loc)
			e.states.ClearDeletePending(t.key)
			e.emit(ctx, t, a)
			return a
		case answerNo:
			e.states.ClearDeletePending(t.key)
			return action.Message{Key: "cancelled"}
		default:
			return action.Clarify{Key: "confirm_yes_no", Candidates: op.Candidates, NeedsConfirmation: true}
		}
	}

	e.states.ClearDeletePending(t.key)
	return e.interpret(ctx, t)
}

// deleteQuery reads a title from a reply in awaiting_query. A repeated
// delete command is reduced to its title hint.
func (e *Engine) deleteQuery(t *turn) string {
	res := e.rules.Extract(t.message, t.loc)
	if res.Intent == intent.DeleteTask {
		return res.TitleQuery
	}
	return cleanReply(t.message)
}

// continuePending handles a single-step follow-up. It returns false when
// the message abandons the pending question and must be interpreted afresh.
func (e *Engine) continuePending(ctx context.Context, t *turn, p *conversation.Pending) (action.Action, bool) {
	switch p.ExpectedField {
	case conversation.FieldDueTime:
		ent := p.Entities
		if due, ok := e.dueReply(t, ent.DueAt); ok {
			ent.DueAt = &due
			e.states.ClearPending(t.key)
			return e.execute(ctx, t, intent.CreateTask, ent), true
		}
		switch e.rules.Extract(t.message, t.loc).Intent {
		case intent.Chat, intent.Clarify:
			// keep the default hour on the captured day
			e.states.ClearPending(t.key)
			return e.execute(ctx, t, intent.CreateTask, ent), true
		}
		e.states.ClearPending(t.key)
		return nil, false

	case conversation.FieldTitle:
		switch e.rules.Extract(t.message, t.loc).Intent {
		case intent.ListTasks, intent.DeleteTask, intent.CompleteTask, intent.UpdateTask:
			e.states.ClearPending(t.key)
			return nil, false
		}
		title := cleanReply(t.message)
		if title == "" {
			return action.Clarify{Key: "ask_title"}, true
		}
		ent := p.Entities
		ent.Title = title
		e.states.ClearPending(t.key)
		return e.execute(ctx, t, intent.CreateTask, ent), true

	case conversation.FieldTaskChoice:
		if c, ok := pickCandidate(t.message, p.Candidates); ok {
			ent := p.Entities
			ent.TaskID = c.TaskID
			e.states.ClearPending(t.key)
			return e.execute(ctx, t, p.Intent, ent), true
		}
		if p.Reprompted {
			e.states.ClearPending(t.key)
			return action.Message{Key: "choice_gave_up"}, true
		}
		e.states.MarkReprompted(t.key)
		return action.Clarify{Key: "AMBIGUOUS_PICK_ONE", Candidates: p.Candidates}, true
	}

	e.states.ClearPending(t.key)
	return nil, false
}

// dueReply reads the answer to "what time?". A reply naming a day is parsed
// as a full due phrase; otherwise the time applies to the captured day.
func (e *Engine) dueReply(t *turn, anchor *time.Time) (time.Time, bool) {
	if temporal.HasDayWord(t.message) {
		if due, _, ok := temporal.ExtractDue(t.message, t.loc, t.now); ok {
			return due, true
		}
	}
	clock, ok := temporal.ParseClock(t.message)
	if !ok {
		clock, ok = bareClock(t.message)
	}
	if !ok {
		return time.Time{}, false
	}
	day := t.now.In(t.loc)
	if anchor != nil {
		day = anchor.In(t.loc)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour, clock.Minute, 0, 0, t.loc), true
}
