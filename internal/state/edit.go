package state

import (
	"fmt"
	"time"
)

// The edit helpers below return a modified copy; callers persist it with
// Store.Save.

// AddTodo appends a named todo with a fresh id.
func (s ProjectState) AddTodo(title, priority string, now time.Time) (ProjectState, Item) {
	s = s.Normalized()
	it := Named(NamedItem{
		ID:        s.NextTodoID(),
		Title:     title,
		Priority:  priority,
		CreatedAt: now.UTC().Format(time.RFC3339),
	})
	s.Todos = append(append([]Item{}, s.Todos...), it)
	return s, it
}

// AddBlocker appends a blocker referencing the given todo ids. Unknown ids
// are accepted.
func (s ProjectState) AddBlocker(description string, blocks []string, now time.Time) (ProjectState, Item) {
	s = s.Normalized()
	it := Named(NamedItem{
		ID:           s.NextBlockerID(),
		Description:  description,
		BlockedTodos: blocks,
		CreatedAt:    now.UTC().Format(time.RFC3339),
	})
	s.Blockers = append(append([]Item{}, s.Blockers...), it)
	return s, it
}

// Start moves a todo into in_progress.
func (s ProjectState) Start(id string) (ProjectState, error) {
	s = s.Normalized()
	rest, it, ok := take(s.Todos, id)
	if !ok {
		return s, fmt.Errorf("state: no todo %q", id)
	}
	s.Todos = rest
	s.InProgress = append(append([]Item{}, s.InProgress...), it)
	return s, nil
}

// Complete moves a todo or in-progress item into completed.
func (s ProjectState) Complete(id string) (ProjectState, error) {
	s = s.Normalized()
	if rest, it, ok := take(s.InProgress, id); ok {
		s.InProgress = rest
		s.Completed = append(append([]Item{}, s.Completed...), it)
		return s, nil
	}
	if rest, it, ok := take(s.Todos, id); ok {
		s.Todos = rest
		s.Completed = append(append([]Item{}, s.Completed...), it)
		return s, nil
	}
	return s, fmt.Errorf("state: no open item %q", id)
}

// Resolve removes a blocker.
func (s ProjectState) Resolve(id string) (ProjectState, error) {
	s = s.Normalized()
	rest, _, ok := take(s.Blockers, id)
	if !ok {
		return s, fmt.Errorf("state: no blocker %q", id)
	}
	s.Blockers = rest
	return s, nil
}

// take matches by id, or by exact text for raw items.
func take(list []Item, id string) ([]Item, Item, bool) {
	for i, it := range list {
		if it.ID() == id || (!it.IsNamed() && it.Text == id) {
			rest := make([]Item, 0, len(list)-1)
			rest = append(rest, list[:i]...)
			rest = append(rest, list[i+1:]...)
			return rest, it, true
		}
	}
	return list, Item{}, false
}
