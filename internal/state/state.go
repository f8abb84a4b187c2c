// Package state models the durable project-state record and its store.
package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultPhase is the phase of a record that has never been given one.
const DefaultPhase = "initialized"

// ProjectState is the durable record of work for one project.
type ProjectState struct {
	Goal       string `json:"goal"`
	Phase      string `json:"phase"`
	Todos      []Item `json:"todos"`
	InProgress []Item `json:"in_progress"`
	Completed  []Item `json:"completed"`
	Blockers   []Item `json:"blockers"`

	AgentRegistry  []Agent         `json:"agent_registry,omitempty"`
	Checkpoints    []Checkpoint    `json:"checkpoints,omitempty"`
	CircuitBreaker *CircuitBreaker `json:"circuit_breaker,omitempty"`
	ContextHealth  *ContextHealth  `json:"context_health,omitempty"`
	CurrentSession *CurrentSession `json:"current_session,omitempty"`
	Notes          string          `json:"notes,omitempty"`

	// Extra preserves top-level fields written by other tools.
	Extra map[string]json.RawMessage `json:"-"`
}

var stateKeys = []string{
	"goal", "phase", "todos", "in_progress", "completed", "blockers",
	"agent_registry", "checkpoints", "circuit_breaker", "context_health",
	"current_session", "notes",
}

type Agent struct {
	Name           string `json:"name"`
	Status         string `json:"status"` // active, idle, archived
	Specialization string `json:"specialization"`
}

type Checkpoint struct {
	Name        string `json:"name"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description,omitempty"`
}

type CircuitBreaker struct {
	Triggered bool    `json:"triggered"`
	Reason    *string `json:"reason"`
	Timestamp *string `json:"timestamp"`
}

type ContextHealth struct {
	EstimatedUsage string  `json:"estimated_usage"` // low, medium, high
	LastArchive    *string `json:"last_archive"`
}

type CurrentSession struct {
	Started string   `json:"started"`
	LLM     string   `json:"llm"`
	Actions []string `json:"actions"`
}

// Default returns the skeleton every loaded record is merged onto.
func Default() ProjectState {
	return ProjectState{
		Phase:      DefaultPhase,
		Todos:      []Item{},
		InProgress: []Item{},
		Completed:  []Item{},
		Blockers:   []Item{},
	}
}

// Normalized fills missing collections and the phase from Default.
func (s ProjectState) Normalized() ProjectState {
	if strings.TrimSpace(s.Phase) == "" {
		s.Phase = DefaultPhase
	}
	s.Todos = normalizeItems(s.Todos)
	s.InProgress = normalizeItems(s.InProgress)
	s.Completed = normalizeItems(s.Completed)
	s.Blockers = normalizeItems(s.Blockers)
	// Empty optional members are not written, so they load back as nil.
	if len(s.AgentRegistry) == 0 {
		s.AgentRegistry = nil
	}
	if len(s.Checkpoints) == 0 {
		s.Checkpoints = nil
	}
	if len(s.Extra) == 0 {
		s.Extra = nil
	}
	return s
}

// normalizeItems returns a fresh list; named items are copied so the
// caller's records are never modified.
func normalizeItems(list []Item) []Item {
	out := make([]Item, len(list))
	for i, it := range list {
		if it.Named != nil {
			n := *it.Named
			if len(n.BlockedTodos) == 0 {
				n.BlockedTodos = nil
			}
			if len(n.Extra) == 0 {
				n.Extra = nil
			}
			it.Named = &n
		}
		out[i] = it
	}
	return out
}

func (s ProjectState) MarshalJSON() ([]byte, error) {
	type plain ProjectState
	b, err := json.Marshal(plain(s.Normalized()))
	if err != nil {
		return nil, err
	}
	return appendExtra(b, s.Extra)
}

func (s *ProjectState) UnmarshalJSON(data []byte) error {
	type plain ProjectState
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, stateKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*s = ProjectState(p).Normalized()
	return nil
}

// DanglingRef is a blocker reference to a todo id that no list contains.
type DanglingRef struct {
	Blocker string
	TodoID  string
}

// DanglingBlockerRefs lists blockedTodos entries that do not match any todo,
// in-progress or completed item id. References are tolerated everywhere;
// this only reports them.
func (s ProjectState) DanglingBlockerRefs() []DanglingRef {
	ids := make(map[string]struct{})
	for _, list := range [][]Item{s.Todos, s.InProgress, s.Completed} {
		for _, it := range list {
			if id := it.ID(); id != "" {
				ids[id] = struct{}{}
			}
		}
	}
	var out []DanglingRef
	for _, b := range s.Blockers {
		if b.Named == nil {
			continue
		}
		for _, ref := range b.Named.BlockedTodos {
			if _, ok := ids[ref]; !ok {
				out = append(out, DanglingRef{Blocker: b.Label(), TodoID: ref})
			}
		}
	}
	return out
}

// NextTodoID returns the next free "T<nnn>" id across the work lists.
func (s ProjectState) NextTodoID() string {
	return nextID("T", s.Todos, s.InProgress, s.Completed)
}

// NextBlockerID returns the next free "B<nnn>" id.
func (s ProjectState) NextBlockerID() string {
	return nextID("B", s.Blockers)
}

func nextID(prefix string, lists ...[]Item) string {
	highest := 0
	for _, list := range lists {
		for _, it := range list {
			var n int
			if _, err := fmt.Sscanf(it.ID(), prefix+"%d", &n); err == nil && n > highest {
				highest = n
			}
		}
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1)
}
