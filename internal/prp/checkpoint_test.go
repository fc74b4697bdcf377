package prp

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRecordAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "P1.M1.T1.S1", "checkpoints.json")
	cp := NewCheckpointer(path, "P1.M1.T1.S1", 10)

	require.NoError(t, cp.Record(StagePreExecution, CheckpointState{
		PRPPath: "PRP/P1.M1.T1.S1.md",
		Stage:   StagePreExecution,
	}, nil))
	require.NoError(t, cp.Record(StageValidationGate(1), CheckpointState{
		Stage: StageValidationGate(1),
		ValidationResults: []GateResult{
			{Level: 1, Name: "syntax", Passed: true},
		},
	}, nil))

	file, err := cp.Load()
	require.NoError(t, err)
	require.Len(t, file.Checkpoints, 2)

	first := file.Checkpoints[0]
	assert.Equal(t, StagePreExecution, first.Label)
	assert.Equal(t, "P1.M1.T1.S1", first.TaskID)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := file.Checkpoints[1]
	assert.Equal(t, "validation-gate-1", second.Label)
	require.Len(t, second.State.ValidationResults, 1)
	assert.True(t, second.State.ValidationResults[0].Passed)
}

func TestCheckpointRetentionPrunesOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	cp := NewCheckpointer(path, "P1.M1.T1.S1", 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, cp.Record(StageCoderResponse, CheckpointState{FixAttempt: i}, nil))
	}

	file, err := cp.Load()
	require.NoError(t, err)
	require.Len(t, file.Checkpoints, 3)
	assert.Equal(t, 2, file.Checkpoints[0].State.FixAttempt)
	assert.Equal(t, 4, file.Checkpoints[2].State.FixAttempt)
}

func TestCheckpointTimestampsMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	cp := NewCheckpointer(path, "P1.M1.T1.S1", 10)

	fake := time.Now()
	cp.now = func() time.Time {
		fake = fake.Add(time.Second)
		return fake
	}

	require.NoError(t, cp.Record("a", CheckpointState{}, nil))
	require.NoError(t, cp.Record("b", CheckpointState{}, nil))

	file, err := cp.Load()
	require.NoError(t, err)
	require.Len(t, file.Checkpoints, 2)
	assert.True(t, file.Checkpoints[1].CreatedAt.After(file.Checkpoints[0].CreatedAt))
	assert.Equal(t, file.Checkpoints[1].CreatedAt, file.LastModified)
}

func TestCheckpointRecordsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	cp := NewCheckpointer(path, "P1.M1.T1.S1", 10)

	require.NoError(t, cp.Record(StageCancelled, CheckpointState{Stage: StageCancelled},
		&CheckpointError{Message: "context canceled", Code: "cancelled"}))

	file, err := cp.Load()
	require.NoError(t, err)
	require.Len(t, file.Checkpoints, 1)
	require.NotNil(t, file.Checkpoints[0].Error)
	assert.Equal(t, "cancelled", file.Checkpoints[0].Error.Code)
}

func TestLoadEmptyWhenAbsent(t *testing.T) {
	cp := NewCheckpointer(filepath.Join(t.TempDir(), "nope.json"), "x", 10)
	file, err := cp.Load()
	require.NoError(t, err)
	assert.Empty(t, file.Checkpoints)
}
