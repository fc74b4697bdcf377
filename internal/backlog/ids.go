package backlog

import (
	"regexp"
	"strings"
)

// Identifier grammar: P<n>, P<n>.M<n>, P<n>.M<n>.T<n>, P<n>.M<n>.T<n>.S<n>
// where <n> is a positive decimal. Lowercase letters, alternative separators,
// and extra levels are invalid.
var (
	phaseIDRe     = regexp.MustCompile(`^P[1-9]\d*$`)
	milestoneIDRe = regexp.MustCompile(`^P[1-9]\d*\.M[1-9]\d*$`)
	taskIDRe      = regexp.MustCompile(`^P[1-9]\d*\.M[1-9]\d*\.T[1-9]\d*$`)
	subtaskIDRe   = regexp.MustCompile(`^P[1-9]\d*\.M[1-9]\d*\.T[1-9]\d*\.S[1-9]\d*$`)
)

// ScopeRe matches well-formed scope strings at any depth.
var ScopeRe = regexp.MustCompile(`^P\d+(\.M\d+(\.T\d+(\.S\d+)?)?)?$`)

// KindOf classifies an identifier by its grammar, or returns false if the id
// is not well formed at any level.
func KindOf(id string) (Kind, bool) {
	switch {
	case phaseIDRe.MatchString(id):
		return KindPhase, true
	case milestoneIDRe.MatchString(id):
		return KindMilestone, true
	case taskIDRe.MatchString(id):
		return KindTask, true
	case subtaskIDRe.MatchString(id):
		return KindSubtask, true
	}
	return "", false
}

// ValidID reports whether id is well formed for the given kind.
func ValidID(id string, kind Kind) bool {
	k, ok := KindOf(id)
	return ok && k == kind
}

// Ancestors returns the ancestor ids of an identifier, outermost first.
// Parents are recovered by prefix truncation: P1.M2.T3.S4 → [P1, P1.M2, P1.M2.T3].
func Ancestors(id string) []string {
	parts := strings.Split(id, ".")
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "."))
	}
	return out
}

// ParentID returns the immediate parent of an identifier, or "" for a phase.
func ParentID(id string) string {
	idx := strings.LastIndexByte(id, '.')
	if idx < 0 {
		return ""
	}
	return id[:idx]
}
