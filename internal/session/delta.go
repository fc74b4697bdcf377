package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/store"
)

// DeltaSpec describes how a changed PRD maps onto the backlog: item ids that
// were added, modified, or removed, a free-text patch instruction for the
// agents, and the new PRD's decomposition. Every id referenced must resolve
// in Backlog (removed ids excepted — they resolve in the parent).
type DeltaSpec struct {
	Added        []string         `json:"added"`
	Modified     []string         `json:"modified"`
	Removed      []string         `json:"removed"`
	Instructions string           `json:"instructions"`
	Backlog      *backlog.Backlog `json:"backlog,omitempty"`
}

// ComputeDelta produces a deterministic DeltaSpec skeleton from two PRD
// revisions: a line-oriented diff over `## ` section headings, with ids
// recovered by matching changed headings against the current backlog's
// titles. The architect agent may refine the result; CreateDeltaSession
// accepts any DeltaSpec whose ids resolve.
func (m *Manager) ComputeDelta(oldPRD, newPRD []byte, completedIDs []string) DeltaSpec {
	oldSections := prdSections(string(oldPRD))
	newSections := prdSections(string(newPRD))

	var added, removed, modified []string
	for title := range newSections {
		if _, ok := oldSections[title]; !ok {
			added = append(added, title)
		} else if oldSections[title] != newSections[title] {
			modified = append(modified, title)
		}
	}
	for title := range oldSections {
		if _, ok := newSections[title]; !ok {
			removed = append(removed, title)
		}
	}

	spec := DeltaSpec{}
	var inst strings.Builder
	completed := make(map[string]bool, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = true
	}

	current := m.Backlog()
	writeSection := func(verb string, titles []string, collect *[]string) {
		for _, title := range titles {
			id := ""
			if current != nil {
				id = findByTitle(current, title)
			}
			if id != "" && collect != nil {
				*collect = append(*collect, id)
			}
			fmt.Fprintf(&inst, "- %s section %q", verb, title)
			if id != "" {
				fmt.Fprintf(&inst, " (backlog item %s", id)
				if completed[id] {
					inst.WriteString(", previously completed")
				}
				inst.WriteString(")")
			}
			inst.WriteString("\n")
		}
	}

	writeSection("added", added, nil)
	writeSection("modified", modified, &spec.Modified)
	writeSection("removed", removed, &spec.Removed)

	spec.Instructions = inst.String()
	return spec
}

// prdSections splits a PRD into `## ` heading sections mapped to their body.
func prdSections(prd string) map[string]string {
	sections := make(map[string]string)
	var title string
	var body strings.Builder
	flush := func() {
		if title != "" {
			sections[title] = strings.TrimSpace(body.String())
		}
		body.Reset()
	}
	for _, line := range strings.Split(prd, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			title = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// findByTitle fuzzy-matches a PRD section heading to a backlog item title.
func findByTitle(b *backlog.Backlog, title string) string {
	want := strings.ToLower(strings.TrimSpace(title))
	found := ""
	b.Walk(func(it backlog.Item) {
		if found != "" {
			return
		}
		if strings.ToLower(strings.TrimSpace(it.Title)) == want {
			found = it.ID
		}
	})
	return found
}

// CreateDeltaSession allocates a new session for a changed PRD, records its
// parentage, and seeds tasks.json by applying the delta: Complete subtasks
// that survive in the new decomposition carry forward, added and modified
// items start Planned, removed items are dropped. The manager switches to
// the new session.
func (m *Manager) CreateDeltaSession(parentID string, newPRD []byte, delta DeltaSpec) (*Session, error) {
	parentDir := filepath.Join(m.planRoot, parentID)
	if _, err := os.Stat(parentDir); err != nil {
		return nil, fmt.Errorf("%w: parent session %s: %v", ErrSessionLoad, parentID, err)
	}
	if delta.Backlog == nil {
		return nil, fmt.Errorf("delta spec carries no decomposition for the new PRD")
	}

	seeded, err := applyDelta(m.Backlog(), delta)
	if err != nil {
		return nil, err
	}

	_, maxSeq, err := scanSessions(m.planRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", ErrPlanRoot, m.planRoot, err)
	}

	hash := HashPRD(newPRD)
	s := &Session{Sequence: maxSeq + 1, PRDHash: hash}
	s.ID = sessionID(s.Sequence, hash)
	s.Dir = filepath.Join(m.planRoot, s.ID)

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating session dir %s: %v", ErrPlanRoot, s.Dir, err)
	}
	if err := store.WriteBody(s.PRDSnapshotPath(), string(newPRD)); err != nil {
		return nil, err
	}
	if err := store.WriteBody(s.ParentPath(), parentID+"\n"); err != nil {
		return nil, err
	}

	data, err := seeded.Marshal()
	if err != nil {
		return nil, err
	}
	if err := store.WriteFileAtomic(s.TasksPath(), data, 0644); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = s
	m.backlog = seeded
	m.pending = nil
	m.dirty = false
	m.updateCount = 0
	m.mu.Unlock()

	slog.Info("created delta session", "session", s.ID, "parent", parentID)
	return s, nil
}

// applyDelta seeds a new backlog from the delta's decomposition plus the
// parent's completed state.
func applyDelta(parent *backlog.Backlog, delta DeltaSpec) (*backlog.Backlog, error) {
	seeded := delta.Backlog.Clone()

	changed := make(map[string]bool)
	for _, id := range delta.Added {
		changed[id] = true
	}
	for _, id := range delta.Modified {
		changed[id] = true
	}

	for _, id := range append(append([]string{}, delta.Added...), delta.Modified...) {
		if _, ok := seeded.Find(id); !ok {
			return nil, fmt.Errorf("delta references id %q not present in the new decomposition", id)
		}
	}

	dropRemoved(seeded, delta.Removed)

	for _, sub := range seeded.Subtasks() {
		switch {
		case changed[sub.ID]:
			sub.Status = backlog.StatusPlanned
		case parent != nil && parentComplete(parent, sub.ID):
			sub.Status = backlog.StatusComplete
		default:
			sub.Status = backlog.StatusPlanned
		}
	}
	seeded.Derive()

	if err := backlog.Validate(seeded); err != nil {
		return nil, fmt.Errorf("seeded delta backlog invalid: %w", err)
	}
	return seeded, nil
}

func parentComplete(parent *backlog.Backlog, id string) bool {
	sub, ok := parent.FindSubtask(id)
	return ok && sub.Status == backlog.StatusComplete
}

// dropRemoved filters removed ids out of the seeded tree at every level.
func dropRemoved(b *backlog.Backlog, removed []string) {
	if len(removed) == 0 {
		return
	}
	gone := make(map[string]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}

	phases := b.Phases[:0]
	for _, p := range b.Phases {
		if gone[p.ID] {
			continue
		}
		milestones := p.Milestones[:0]
		for _, m := range p.Milestones {
			if gone[m.ID] {
				continue
			}
			tasks := m.Tasks[:0]
			for _, t := range m.Tasks {
				if gone[t.ID] {
					continue
				}
				subtasks := t.Subtasks[:0]
				for _, s := range t.Subtasks {
					if !gone[s.ID] {
						subtasks = append(subtasks, s)
					}
				}
				t.Subtasks = subtasks
				tasks = append(tasks, t)
			}
			m.Tasks = tasks
			milestones = append(milestones, m)
		}
		p.Milestones = milestones
		phases = append(phases, p)
	}
	b.Phases = phases
}
