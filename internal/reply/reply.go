// Package reply turns actions into localized chat replies.
package reply

import (
	"fmt"
	"strings"
	"time"

	"hound-taskchat/internal/action"
	"hound-taskchat/internal/i18n"
	"hound-taskchat/internal/match"
	"hound-taskchat/internal/store"
)

const dueLayout = "2006-01-02 15:04"

// Builder renders replies from a message catalog.
type Builder struct {
	cat *i18n.Catalog
}

// New creates a Builder. A nil catalog selects the embedded one.
func New(cat *i18n.Catalog) *Builder {
	if cat == nil {
		cat = i18n.Default()
	}
	return &Builder{cat: cat}
}

// Build renders a for dialect. Due times are shown in loc.
func (b *Builder) Build(a action.Action, dialect string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	switch a := a.(type) {
	case action.CreateTask:
		if a.Task == nil {
			return b.cat.Render(dialect, "save_failed", nil)
		}
		if a.Task.DueAt != nil {
			return b.cat.Render(dialect, "task_created_due", map[string]string{
				"title": a.Task.Title,
				"due":   formatDue(*a.Task.DueAt, loc),
			})
		}
		return b.cat.Render(dialect, "task_created", map[string]string{"title": a.Task.Title})

	case action.ListTasks:
		if len(a.Tasks) == 0 {
			return b.cat.Render(dialect, "tasks_empty", nil)
		}
		return b.cat.Render(dialect, "tasks_list", nil) + "\n" + listTasks(a.Tasks, loc)

	case action.UpdateTask:
		return b.mutation(a.Mutation, dialect, "task_updated")

	case action.CompleteTask:
		return b.mutation(a.Mutation, dialect, "task_completed")

	case action.DeleteTask:
		if !a.OK {
			return b.failure(a.Reason, dialect)
		}
		return b.cat.Render(dialect, "task_deleted", map[string]string{"title": a.Title})

	case action.Clarify:
		text := a.Message
		if text == "" {
			text = b.cat.Render(dialect, a.Key, a.Params)
		}
		if len(a.Candidates) > 0 && !a.NeedsConfirmation {
			text += "\n" + listCandidates(a.Candidates)
		}
		return text

	case action.Message:
		return b.cat.Render(dialect, a.Key, a.Params)

	case action.NotImplemented:
		return b.cat.Render(dialect, "not_implemented", nil)
	}
	return b.cat.Render(dialect, "clarify", nil)
}

// Render exposes the catalog for callers that reply without an action.
func (b *Builder) Render(dialect, key string, params map[string]string) string {
	return b.cat.Render(dialect, key, params)
}

func (b *Builder) mutation(m action.Mutation, dialect, key string) string {
	if !m.OK {
		return b.failure(m.Reason, dialect)
	}
	title := ""
	if m.Task != nil {
		title = m.Task.Title
	}
	return b.cat.Render(dialect, key, map[string]string{"title": title})
}

func (b *Builder) failure(reason, dialect string) string {
	if reason == action.ReasonNotFound {
		return b.cat.Render(dialect, "not_found", nil)
	}
	return b.cat.Render(dialect, "action_failed", nil)
}

func listTasks(tasks []*store.Task, loc *time.Location) string {
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		line := fmt.Sprintf("%d. %s", i+1, t.Title)
		if t.DueAt != nil {
			line += " (" + formatDue(*t.DueAt, loc) + ")"
		}
		if t.Status == store.StatusDone {
			line += " ✓"
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func listCandidates(cands []match.Candidate) string {
	lines := make([]string, len(cands))
	for i, c := range cands {
		lines[i] = fmt.Sprintf("%d. %s", i+1, c.Title)
	}
	return strings.Join(lines, "\n")
}

func formatDue(epoch int64, loc *time.Location) string {
	return time.Unix(epoch, 0).In(loc).Format(dueLayout)
}
