package backlog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScope marks a scope string that fails the grammar; the CLI
	// turns it into a usage error.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrScopeNotFound marks a well-formed scope whose root item does not
	// exist in the backlog.
	ErrScopeNotFound = errors.New("scope not found")
)

// Ref is a flattened queue entry: an entity id plus its type tag. Hierarchy
// is encoded only by emission order.
type Ref struct {
	ID   string
	Kind Kind
}

// ResolveScope turns a scope string into the depth-first pre-order execution
// queue rooted at the scoped item. An empty scope selects the first phase.
// The resolver is pure: it never mutates the backlog and ignores status.
func ResolveScope(b *Backlog, scope string) ([]Ref, error) {
	if scope == "" {
		if len(b.Phases) == 0 {
			return nil, fmt.Errorf("%w: backlog has no phases", ErrScopeNotFound)
		}
		scope = b.Phases[0].ID
	}

	if !ScopeRe.MatchString(scope) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	// The full walk is depth-first pre-order, so filtering it to the scoped
	// subtree preserves pre-order within the subtree.
	var out []Ref
	b.Walk(func(it Item) {
		if it.ID == scope || hasPrefix(it.ID, scope) {
			out = append(out, Ref{ID: it.ID, Kind: it.Kind})
		}
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrScopeNotFound, scope)
	}
	return out, nil
}

func hasPrefix(id, scope string) bool {
	return len(id) > len(scope) && id[:len(scope)] == scope && id[len(scope)] == '.'
}
