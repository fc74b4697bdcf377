package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/store"
)

// Fatal initialization errors (exit code 2 at the CLI boundary).
var (
	ErrPRDRead     = errors.New("PRD unreadable")
	ErrPlanRoot    = errors.New("plan root unusable")
	ErrSessionLoad = errors.New("session corrupt")
)

// BatchStats describes one successful flush of queued status updates.
type BatchStats struct {
	ItemsWritten  int
	WriteOpsSaved int
}

// Manager owns the on-disk session directory and the in-memory backlog for
// its lifetime. Status updates accumulate in a pending copy and reach disk
// only through FlushUpdates, which serializes concurrent flushes and writes
// tasks.json atomically.
type Manager struct {
	planRoot string
	session  *Session

	mu          sync.Mutex
	backlog     *backlog.Backlog // last state known to match disk
	pending     *backlog.Backlog // queued updates, nil when clean
	dirty       bool
	updateCount int
	lastBatch   BatchStats

	unlock func() error
}

// Initialize reads the PRD, computes its hash, and loads the matching session
// under planRoot or creates a new one. The plan root is locked for the life
// of the Manager: exactly one active session per process.
func Initialize(prdPath, planRoot string) (*Manager, error) {
	prd, err := os.ReadFile(prdPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPRDRead, prdPath, err)
	}
	if !utf8.Valid(prd) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrPRDRead, prdPath)
	}

	if err := os.MkdirAll(planRoot, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrPlanRoot, planRoot, err)
	}

	unlock, err := store.AcquireLock(filepath.Join(planRoot, ".drover"), store.DefaultLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanRoot, err)
	}

	m := &Manager{planRoot: planRoot, unlock: unlock}
	if err := m.open(prd); err != nil {
		_ = unlock()
		return nil, err
	}
	return m, nil
}

func (m *Manager) open(prd []byte) error {
	hash := HashPRD(prd)

	existing, maxSeq, err := scanSessions(m.planRoot)
	if err != nil {
		return fmt.Errorf("%w: scanning %s: %v", ErrPlanRoot, m.planRoot, err)
	}

	for _, s := range existing {
		if s.PRDHash[:hashLen] != hash[:hashLen] {
			continue
		}
		if err := m.load(s, hash); err != nil {
			return err
		}
		slog.Info("loaded existing session", "session", s.ID, "dir", s.Dir)
		return nil
	}

	s := &Session{
		Sequence: maxSeq + 1,
		PRDHash:  hash,
	}
	s.ID = sessionID(s.Sequence, hash)
	s.Dir = filepath.Join(m.planRoot, s.ID)

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("%w: creating session dir %s: %v", ErrPlanRoot, s.Dir, err)
	}
	if err := store.WriteBody(s.PRDSnapshotPath(), string(prd)); err != nil {
		return fmt.Errorf("%w: writing PRD snapshot: %v", ErrSessionLoad, err)
	}

	m.session = s
	slog.Info("created session", "session", s.ID, "dir", s.Dir)
	return nil
}

// load binds the manager to an existing session after verifying the snapshot
// hash and, when tasks.json exists, its schema. In-flight subtask statuses
// left behind by a crash are reset to Planned.
func (m *Manager) load(s *Session, wantHash string) error {
	snapshot, err := os.ReadFile(s.PRDSnapshotPath())
	if err != nil {
		return fmt.Errorf("%w: reading PRD snapshot for %s: %v", ErrSessionLoad, s.ID, err)
	}
	s.PRDHash = HashPRD(snapshot)
	if s.PRDHash[:hashLen] != wantHash[:hashLen] {
		return fmt.Errorf("%w: session %s snapshot hash %s does not match directory name",
			ErrSessionLoad, s.ID, s.PRDHash[:hashLen])
	}

	m.session = s

	if !store.Exists(s.TasksPath()) {
		return nil
	}

	b, err := m.LoadBacklog()
	if err != nil {
		return err
	}

	recovered := 0
	for _, sub := range b.Subtasks() {
		if sub.Status.InFlight() {
			sub.Status = backlog.StatusPlanned
			recovered++
		}
	}
	if recovered > 0 {
		slog.Warn("crash recovery: reset in-flight subtasks to Planned", "count", recovered)
		if err := m.SaveBacklog(b); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.backlog = b
	m.mu.Unlock()
	return nil
}

// scanSessions lists session directories under planRoot and the highest
// sequence number in use.
func scanSessions(planRoot string) ([]*Session, int, error) {
	entries, err := os.ReadDir(planRoot)
	if err != nil {
		return nil, 0, err
	}

	var sessions []*Session
	maxSeq := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		match := sessionDirRe.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		seq, _ := strconv.Atoi(match[1])
		if seq > maxSeq {
			maxSeq = seq
		}
		sessions = append(sessions, &Session{
			ID:       e.Name(),
			Dir:      filepath.Join(planRoot, e.Name()),
			Sequence: seq,
			PRDHash:  match[2], // truncated; full hash recovered from the snapshot on load
		})
	}
	return sessions, maxSeq, nil
}

// Session returns the active session handle.
func (m *Manager) Session() *Session { return m.session }

// Backlog returns a consistent snapshot of the current in-memory backlog:
// queued updates are visible before they reach disk.
func (m *Manager) Backlog() *backlog.Backlog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty {
		return m.pending.Clone()
	}
	if m.backlog == nil {
		return nil
	}
	return m.backlog.Clone()
}

// HasBacklog reports whether a backlog has been loaded or saved.
func (m *Manager) HasBacklog() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backlog != nil || m.pending != nil
}

// LoadBacklog reads and schema-validates tasks.json.
func (m *Manager) LoadBacklog() (*backlog.Backlog, error) {
	data, err := os.ReadFile(m.session.TasksPath())
	if err != nil {
		return nil, fmt.Errorf("%w: reading tasks.json: %v", ErrSessionLoad, err)
	}
	b, err := backlog.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionLoad, err)
	}
	return b, nil
}

// SaveBacklog validates and atomically writes the backlog to tasks.json.
// Schema validation happens before any temp file is created, so an invalid
// in-memory state never touches disk.
func (m *Manager) SaveBacklog(b *backlog.Backlog) error {
	if err := backlog.Validate(b); err != nil {
		return err
	}
	data, err := b.Marshal()
	if err != nil {
		return err
	}
	if err := store.WriteFileAtomic(m.session.TasksPath(), data, 0644); err != nil {
		return err
	}
	m.mu.Lock()
	m.backlog = b.Clone()
	m.mu.Unlock()
	return nil
}

// UpdateItemStatus queues a status change in the pending copy of the backlog.
// It never touches disk; FlushUpdates is the sole disk-write entry point for
// status changes. Returns the updated in-memory backlog.
func (m *Manager) UpdateItemStatus(id string, status backlog.Status) (*backlog.Backlog, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.pending
	if base == nil {
		if m.backlog == nil {
			return nil, fmt.Errorf("no backlog loaded")
		}
		base = m.backlog.Clone()
	}
	if !base.SetStatus(id, status) {
		return nil, fmt.Errorf("item %q not found in backlog", id)
	}

	m.pending = base
	m.dirty = true
	m.updateCount++
	return base, nil
}

// FlushUpdates commits all queued status updates to tasks.json in a single
// atomic write. Concurrent flushes are serialized; a no-op when clean. On
// failure the pending buffer, dirty flag, and counter are preserved so a
// retry commits the same content plus anything queued in the interim.
func (m *Manager) FlushUpdates() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}

	m.pending.Derive()

	if err := backlog.Validate(m.pending); err != nil {
		return err
	}
	data, err := m.pending.Marshal()
	if err != nil {
		return err
	}
	if err := store.WriteFileAtomic(m.session.TasksPath(), data, 0644); err != nil {
		return err
	}

	items := m.updateCount
	saved := items - 1
	if saved < 0 {
		saved = 0
	}
	m.lastBatch = BatchStats{ItemsWritten: items, WriteOpsSaved: saved}

	m.backlog = m.pending
	m.pending = nil
	m.dirty = false
	m.updateCount = 0

	slog.Debug("flushed status updates",
		"items_written", m.lastBatch.ItemsWritten,
		"write_ops_saved", m.lastBatch.WriteOpsSaved)
	return nil
}

// LastBatch returns the stats record of the most recent successful flush.
func (m *Manager) LastBatch() BatchStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBatch
}

// Dirty reports whether status updates are queued but not yet flushed.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// HasSessionChanged compares the hash of current PRD bytes against the
// session's recorded hash.
func (m *Manager) HasSessionChanged(currentPRD []byte) bool {
	return HashPRD(currentPRD) != m.session.PRDHash
}

// Close flushes any pending updates and releases the plan-root lock.
func (m *Manager) Close() error {
	flushErr := m.FlushUpdates()
	if m.unlock != nil {
		if err := m.unlock(); err != nil && flushErr == nil {
			flushErr = err
		}
		m.unlock = nil
	}
	return flushErr
}

// ListSessions enumerates all session directories under a plan root, ordered
// by sequence.
func ListSessions(planRoot string) ([]*Session, error) {
	sessions, _, err := scanSessions(planRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	for i := 0; i < len(sessions); i++ {
		for j := i + 1; j < len(sessions); j++ {
			if sessions[j].Sequence < sessions[i].Sequence {
				sessions[i], sessions[j] = sessions[j], sessions[i]
			}
		}
	}
	return sessions, nil
}
