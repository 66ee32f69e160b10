package store

import (
	"context"
	"time"

	"hound-taskchat/internal/match"
)

// Scope narrows a listing by due date.
type Scope string

const (
	ScopeAll   Scope = "all"
	ScopeToday Scope = "today"
)

// ListScoped lists tasks with a status filter and, for ScopeToday, keeps only
// tasks due between local midnight and the end of the day in loc.
func ListScoped(ctx context.Context, s Store, userID string, status Status, scope Scope, loc *time.Location, now time.Time) ([]*Task, error) {
	tasks, err := s.List(ctx, userID, ListFilter{Status: status})
	if err != nil {
		return nil, err
	}
	if scope == ScopeToday {
		tasks = FilterToday(tasks, loc, now)
	}
	return tasks, nil
}

// FilterToday keeps tasks due on the local day of now.
func FilterToday(tasks []*Task, loc *time.Location, now time.Time) []*Task {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	out := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t.DueAt == nil {
			continue
		}
		due := time.Unix(*t.DueAt, 0)
		if !due.Before(start) && due.Before(end) {
			out = append(out, t)
		}
	}
	return out
}

// FuzzySearch ranks the user's tasks against query with the title matcher.
func FuzzySearch(ctx context.Context, s Store, userID, query string, limit int, status Status, scope Scope, loc *time.Location, now time.Time) ([]match.Candidate, error) {
	tasks, err := ListScoped(ctx, s, userID, status, scope, loc, now)
	if err != nil {
		return nil, err
	}
	items := make([]match.Item, len(tasks))
	for i, t := range tasks {
		items[i] = match.Item{ID: t.ID, Title: t.Title}
	}
	return match.Search(query, items, limit), nil
}
