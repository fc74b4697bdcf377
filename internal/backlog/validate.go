package backlog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrDependencyCycle marks a non-DAG dependency graph. This is a programmer
// error in the backlog producer and terminates the run.
var ErrDependencyCycle = errors.New("dependency cycle detected")

// validate is the shared validator instance with custom rules registered.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// item_status restricts status fields to the closed enum.
	_ = v.RegisterValidation("item_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})

	// contract_scope enforces the CONTRACT DEFINITION block format.
	_ = v.RegisterValidation("contract_scope", func(fl validator.FieldLevel) bool {
		_, err := ParseContract(fl.Field().String())
		return err == nil
	})

	return v
}

// Validate checks a backlog against the full schema: struct-level constraints
// (title length, status enum, story point range, contract format), identifier
// grammar per level, parent/child id prefixing, dependency resolution, and
// acyclicity of the dependency graph.
func Validate(b *Backlog) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("backlog schema: %w", err)
	}

	seen := make(map[string]bool)
	for i := range b.Phases {
		p := &b.Phases[i]
		if !ValidID(p.ID, KindPhase) {
			return fmt.Errorf("invalid phase id %q", p.ID)
		}
		if err := noteID(seen, p.ID); err != nil {
			return err
		}
		for j := range p.Milestones {
			m := &p.Milestones[j]
			if !ValidID(m.ID, KindMilestone) {
				return fmt.Errorf("invalid milestone id %q", m.ID)
			}
			if ParentID(m.ID) != p.ID {
				return fmt.Errorf("milestone %q is not contained in phase %q", m.ID, p.ID)
			}
			if err := noteID(seen, m.ID); err != nil {
				return err
			}
			for k := range m.Tasks {
				t := &m.Tasks[k]
				if !ValidID(t.ID, KindTask) {
					return fmt.Errorf("invalid task id %q", t.ID)
				}
				if ParentID(t.ID) != m.ID {
					return fmt.Errorf("task %q is not contained in milestone %q", t.ID, m.ID)
				}
				if err := noteID(seen, t.ID); err != nil {
					return err
				}
				for l := range t.Subtasks {
					s := &t.Subtasks[l]
					if !ValidID(s.ID, KindSubtask) {
						return fmt.Errorf("invalid subtask id %q", s.ID)
					}
					if ParentID(s.ID) != t.ID {
						return fmt.Errorf("subtask %q is not contained in task %q", s.ID, t.ID)
					}
					if err := noteID(seen, s.ID); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := validateDependencies(b); err != nil {
		return err
	}
	return checkAcyclic(b)
}

func noteID(seen map[string]bool, id string) error {
	if seen[id] {
		return fmt.Errorf("duplicate id %q", id)
	}
	seen[id] = true
	return nil
}

// validateDependencies ensures every dependency resolves to a subtask in the
// same backlog and that no subtask depends on itself.
func validateDependencies(b *Backlog) error {
	ids := make(map[string]bool)
	for _, s := range b.Subtasks() {
		ids[s.ID] = true
	}
	for _, s := range b.Subtasks() {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return fmt.Errorf("subtask %q depends on itself", s.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("subtask %q depends on unknown subtask %q", s.ID, dep)
			}
		}
	}
	return nil
}

// checkAcyclic verifies the dependency graph is a DAG via DFS coloring.
func checkAcyclic(b *Backlog) error {
	deps := make(map[string][]string)
	for _, s := range b.Subtasks() {
		deps[s.ID] = s.Dependencies
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int, len(deps))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		color[id] = grey
		for _, dep := range deps[id] {
			switch color[dep] {
			case grey:
				return fmt.Errorf("%w: %s", ErrDependencyCycle,
					strings.Join(append(path, id, dep), " -> "))
			case white:
				if err := visit(dep, append(path, id)); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, s := range b.Subtasks() {
		if color[s.ID] == white {
			if err := visit(s.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
