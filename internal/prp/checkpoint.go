package prp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/droverdev/drover/internal/store"
)

// Stage tags for checkpoint records, in pipeline order.
const (
	StagePreExecution  = "pre-execution"
	StageCoderResponse = "coder-response"
	StageCancelled     = "cancelled"
)

// StageValidationGate returns the stage tag for a gate level (1-4).
func StageValidationGate(level int) string {
	return fmt.Sprintf("validation-gate-%d", level)
}

const checkpointVersion = 1

// GateResult records one gate execution.
type GateResult struct {
	Level      int    `json:"level"`
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exitCode"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// CheckpointState is the snapshot payload at a stage boundary.
type CheckpointState struct {
	PRPPath           string       `json:"prpPath"`
	Stage             string       `json:"stage"`
	CoderResponse     string       `json:"coderResponse,omitempty"`
	CoderResult       string       `json:"coderResult,omitempty"`
	ValidationResults []GateResult `json:"validationResults"`
	FixAttempt        int          `json:"fixAttempt,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
}

// CheckpointError captures the failure that ended a stage, if any.
type CheckpointError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Checkpoint is one recorded stage boundary.
type Checkpoint struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"taskId"`
	Label     string           `json:"label"`
	State     CheckpointState  `json:"state"`
	Error     *CheckpointError `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// CheckpointFile is the on-disk artifacts/<subtask-id>/checkpoints.json.
type CheckpointFile struct {
	Version      int          `json:"version"`
	Checkpoints  []Checkpoint `json:"checkpoints"`
	LastModified time.Time    `json:"lastModified"`
}

// Checkpointer appends per-stage snapshots for one subtask, pruning to the
// retention limit, oldest first.
type Checkpointer struct {
	path      string
	taskID    string
	retention int
	now       func() time.Time
}

// NewCheckpointer creates a checkpointer for a subtask's checkpoint file.
func NewCheckpointer(path, taskID string, retention int) *Checkpointer {
	if retention <= 0 {
		retention = 10
	}
	return &Checkpointer{path: path, taskID: taskID, retention: retention, now: time.Now}
}

// Record appends a checkpoint and atomically rewrites the file.
func (c *Checkpointer) Record(label string, state CheckpointState, cpErr *CheckpointError) error {
	file, err := c.Load()
	if err != nil {
		return err
	}

	now := c.now()
	if state.Timestamp.IsZero() {
		state.Timestamp = now
	}

	file.Checkpoints = append(file.Checkpoints, Checkpoint{
		ID:        uuid.NewString(),
		TaskID:    c.taskID,
		Label:     label,
		State:     state,
		Error:     cpErr,
		CreatedAt: now,
	})
	if len(file.Checkpoints) > c.retention {
		file.Checkpoints = file.Checkpoints[len(file.Checkpoints)-c.retention:]
	}
	file.Version = checkpointVersion
	file.LastModified = now

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating artifacts directory: %w", err)
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoints: %w", err)
	}
	return store.WriteFileAtomic(c.path, data, 0644)
}

// Load reads the checkpoint file, returning an empty file when absent.
func (c *Checkpointer) Load() (*CheckpointFile, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CheckpointFile{Version: checkpointVersion}, nil
		}
		return nil, fmt.Errorf("reading checkpoints: %w", err)
	}
	var file CheckpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing checkpoints: %w", err)
	}
	return &file, nil
}
