package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
)

// hashLen is the number of hex characters of the PRD hash embedded in a
// session id.
const hashLen = 12

// sessionDirRe matches content-addressed session directory names:
// a zero-padded sequence, an underscore, and the first 12 hex chars of the
// PRD's SHA-256.
var sessionDirRe = regexp.MustCompile(`^(\d+)_([0-9a-f]{12})$`)

// Session is the handle to one content-addressed session directory. The
// Manager owns it exclusively; the orchestrator and PRP runtime receive a
// non-owning borrow.
type Session struct {
	ID       string
	Dir      string
	Sequence int
	PRDHash  string // full SHA-256 hex of the PRD snapshot
}

// PRDSnapshotPath is the byte copy of the PRD taken at session creation.
func (s *Session) PRDSnapshotPath() string {
	return filepath.Join(s.Dir, "prd_snapshot.md")
}

// TasksPath is the serialized backlog.
func (s *Session) TasksPath() string {
	return filepath.Join(s.Dir, "tasks.json")
}

// ParentPath records the parent session id; present only in delta sessions.
func (s *Session) ParentPath() string {
	return filepath.Join(s.Dir, "parent_session.txt")
}

// BlueprintPath is the generated blueprint markdown for a subtask.
func (s *Session) BlueprintPath(subtaskID string) string {
	return filepath.Join(s.Dir, "PRP", subtaskID+".md")
}

// CachePath is the blueprint cache metadata for a subtask.
func (s *Session) CachePath(subtaskID string) string {
	return filepath.Join(s.Dir, "PRP", ".cache", subtaskID+".json")
}

// CheckpointsPath is the per-stage snapshot file for a subtask.
func (s *Session) CheckpointsPath(subtaskID string) string {
	return filepath.Join(s.Dir, "artifacts", subtaskID, "checkpoints.json")
}

// HashPRD computes the full SHA-256 hex digest of PRD bytes.
func HashPRD(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// sessionID formats a session directory name from its parts.
func sessionID(seq int, prdHash string) string {
	return fmt.Sprintf("%03d_%s", seq, prdHash[:hashLen])
}
