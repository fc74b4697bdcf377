package backlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a backlog item.
type Status string

// Valid item statuses. Subtasks progress Planned → Researching →
// Implementing → Complete, or end in Failed/Blocked.
const (
	StatusPlanned      Status = "Planned"
	StatusResearching  Status = "Researching"
	StatusImplementing Status = "Implementing"
	StatusValidating   Status = "Validating"
	StatusComplete     Status = "Complete"
	StatusFailed       Status = "Failed"
	StatusBlocked      Status = "Blocked"
)

// validStatuses is the closed set of allowed statuses.
var validStatuses = map[Status]bool{
	StatusPlanned:      true,
	StatusResearching:  true,
	StatusImplementing: true,
	StatusValidating:   true,
	StatusComplete:     true,
	StatusFailed:       true,
	StatusBlocked:      true,
}

// Valid reports whether s is a member of the status enum.
func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether s is a final state for a subtask.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusBlocked
}

// InFlight reports whether s indicates work that has started but not finished.
func (s Status) InFlight() bool {
	return s == StatusResearching || s == StatusImplementing || s == StatusValidating
}

// Kind is the type tag of a backlog entity.
type Kind string

const (
	KindPhase     Kind = "Phase"
	KindMilestone Kind = "Milestone"
	KindTask      Kind = "Task"
	KindSubtask   Kind = "Subtask"
)

// Backlog is the full four-level task hierarchy for one session.
// Hierarchy is forward containment only: parents own ordered children and
// there are no back-pointers, so the structure is a pure tree.
type Backlog struct {
	Phases []Phase `json:"backlog" validate:"required,dive"`
}

// Phase is the top level of the hierarchy.
type Phase struct {
	ID          string      `json:"id" validate:"required"`
	Type        Kind        `json:"type" validate:"required,eq=Phase"`
	Title       string      `json:"title" validate:"required,min=1,max=200"`
	Status      Status      `json:"status" validate:"required,item_status"`
	Description string      `json:"description"`
	Milestones  []Milestone `json:"milestones" validate:"dive"`
}

// Milestone groups tasks within a phase.
type Milestone struct {
	ID          string `json:"id" validate:"required"`
	Type        Kind   `json:"type" validate:"required,eq=Milestone"`
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Status      Status `json:"status" validate:"required,item_status"`
	Description string `json:"description"`
	Tasks       []Task `json:"tasks" validate:"dive"`
}

// Task groups subtasks within a milestone.
type Task struct {
	ID          string    `json:"id" validate:"required"`
	Type        Kind      `json:"type" validate:"required,eq=Task"`
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	Status      Status    `json:"status" validate:"required,item_status"`
	Description string    `json:"description"`
	Subtasks    []Subtask `json:"subtasks" validate:"dive"`
}

// Subtask is the leaf work unit; the only entity carrying dependencies and
// story points. ContextScope holds a CONTRACT DEFINITION block.
type Subtask struct {
	ID           string   `json:"id" validate:"required"`
	Type         Kind     `json:"type" validate:"required,eq=Subtask"`
	Title        string   `json:"title" validate:"required,min=1,max=200"`
	Status       Status   `json:"status" validate:"required,item_status"`
	StoryPoints  int      `json:"story_points" validate:"min=1,max=21"`
	Dependencies []string `json:"dependencies"`
	ContextScope string   `json:"context_scope" validate:"required,contract_scope"`
}

// Item is the common header view over any backlog entity.
type Item struct {
	ID     string
	Kind   Kind
	Title  string
	Status Status
}

// Marshal serializes the backlog with 2-space indentation, the on-disk
// tasks.json wire format.
func (b *Backlog) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("encoding backlog: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a serialized backlog.
func Decode(data []byte) (*Backlog, error) {
	var b Backlog
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing backlog: %w", err)
	}
	if err := Validate(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Clone returns a deep copy of the backlog. Status updates are applied to
// clones so the last-flushed state stays intact until a flush succeeds.
func (b *Backlog) Clone() *Backlog {
	out := &Backlog{Phases: make([]Phase, len(b.Phases))}
	for i, p := range b.Phases {
		cp := p
		cp.Milestones = make([]Milestone, len(p.Milestones))
		for j, m := range p.Milestones {
			cm := m
			cm.Tasks = make([]Task, len(m.Tasks))
			for k, t := range m.Tasks {
				ct := t
				ct.Subtasks = make([]Subtask, len(t.Subtasks))
				for l, s := range t.Subtasks {
					cs := s
					cs.Dependencies = append([]string(nil), s.Dependencies...)
					ct.Subtasks[l] = cs
				}
				cm.Tasks[k] = ct
			}
			cp.Milestones[j] = cm
		}
		out.Phases[i] = cp
	}
	return out
}

// Find locates any entity by id and returns its common header.
func (b *Backlog) Find(id string) (Item, bool) {
	var found Item
	ok := false
	b.Walk(func(it Item) {
		if it.ID == id {
			found = it
			ok = true
		}
	})
	return found, ok
}

// FindSubtask locates a subtask by id.
func (b *Backlog) FindSubtask(id string) (*Subtask, bool) {
	for i := range b.Phases {
		for j := range b.Phases[i].Milestones {
			for k := range b.Phases[i].Milestones[j].Tasks {
				for l := range b.Phases[i].Milestones[j].Tasks[k].Subtasks {
					s := &b.Phases[i].Milestones[j].Tasks[k].Subtasks[l]
					if s.ID == id {
						return s, true
					}
				}
			}
		}
	}
	return nil, false
}

// SetStatus updates the status of the entity with the given id.
// Returns false if no such entity exists.
func (b *Backlog) SetStatus(id string, status Status) bool {
	for i := range b.Phases {
		p := &b.Phases[i]
		if p.ID == id {
			p.Status = status
			return true
		}
		for j := range p.Milestones {
			m := &p.Milestones[j]
			if m.ID == id {
				m.Status = status
				return true
			}
			for k := range m.Tasks {
				t := &m.Tasks[k]
				if t.ID == id {
					t.Status = status
					return true
				}
				for l := range t.Subtasks {
					s := &t.Subtasks[l]
					if s.ID == id {
						s.Status = status
						return true
					}
				}
			}
		}
	}
	return false
}

// Walk visits every entity in depth-first pre-order.
func (b *Backlog) Walk(fn func(Item)) {
	for i := range b.Phases {
		p := &b.Phases[i]
		fn(Item{ID: p.ID, Kind: KindPhase, Title: p.Title, Status: p.Status})
		for j := range p.Milestones {
			m := &p.Milestones[j]
			fn(Item{ID: m.ID, Kind: KindMilestone, Title: m.Title, Status: m.Status})
			for k := range m.Tasks {
				t := &m.Tasks[k]
				fn(Item{ID: t.ID, Kind: KindTask, Title: t.Title, Status: t.Status})
				for l := range t.Subtasks {
					s := &t.Subtasks[l]
					fn(Item{ID: s.ID, Kind: KindSubtask, Title: s.Title, Status: s.Status})
				}
			}
		}
	}
}

// Subtasks returns pointers to every subtask in DFS pre-order.
func (b *Backlog) Subtasks() []*Subtask {
	var out []*Subtask
	for i := range b.Phases {
		for j := range b.Phases[i].Milestones {
			for k := range b.Phases[i].Milestones[j].Tasks {
				t := &b.Phases[i].Milestones[j].Tasks[k]
				for l := range t.Subtasks {
					out = append(out, &t.Subtasks[l])
				}
			}
		}
	}
	return out
}

// Derive recomputes parent statuses bottom-up: a parent whose children are
// all Complete becomes Complete; a parent with any Failed or Blocked child
// and no remaining pending children becomes Failed.
func (b *Backlog) Derive() {
	for i := range b.Phases {
		p := &b.Phases[i]
		for j := range p.Milestones {
			m := &p.Milestones[j]
			for k := range m.Tasks {
				t := &m.Tasks[k]
				if derived, ok := deriveFromChildren(subtaskStatuses(t.Subtasks)); ok {
					t.Status = derived
				}
			}
			if derived, ok := deriveFromChildren(taskStatuses(m.Tasks)); ok {
				m.Status = derived
			}
		}
		if derived, ok := deriveFromChildren(milestoneStatuses(p.Milestones)); ok {
			p.Status = derived
		}
	}
}

func subtaskStatuses(ss []Subtask) []Status {
	out := make([]Status, len(ss))
	for i, s := range ss {
		out[i] = s.Status
	}
	return out
}

func taskStatuses(ts []Task) []Status {
	out := make([]Status, len(ts))
	for i, t := range ts {
		out[i] = t.Status
	}
	return out
}

func milestoneStatuses(ms []Milestone) []Status {
	out := make([]Status, len(ms))
	for i, m := range ms {
		out[i] = m.Status
	}
	return out
}

// deriveFromChildren returns the parent status implied by child statuses.
// The second return is false when no derivation applies (children still
// pending or in flight), in which case the scheduler-set status stands.
func deriveFromChildren(children []Status) (Status, bool) {
	if len(children) == 0 {
		return "", false
	}
	allComplete := true
	anyFailed := false
	anyPending := false
	for _, c := range children {
		if c != StatusComplete {
			allComplete = false
		}
		if c == StatusFailed || c == StatusBlocked {
			anyFailed = true
		}
		if c == StatusPlanned || c.InFlight() {
			anyPending = true
		}
	}
	if allComplete {
		return StatusComplete, true
	}
	if anyFailed && !anyPending {
		return StatusFailed, true
	}
	return "", false
}
