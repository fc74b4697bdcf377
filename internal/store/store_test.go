package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadDocumentWithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.md")

	doc := &Document{
		Frontmatter: map[string]any{
			"task_id":   "P1.M1.T1.S1",
			"cache_key": "abc123",
		},
		Body: "# Blueprint\n\nSome body text.\n",
	}

	require.NoError(t, WriteDocument(path, doc))

	got, err := ReadDocument(path)
	require.NoError(t, err)

	assert.Equal(t, "P1.M1.T1.S1", GetString(got.Frontmatter, "task_id"))
	assert.Equal(t, "abc123", GetString(got.Frontmatter, "cache_key"))
	assert.Contains(t, got.Body, "# Blueprint")
}

func TestReadDocumentWithoutFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.md")
	require.NoError(t, os.WriteFile(path, []byte("plain body\n"), 0644))

	got, err := ReadDocument(path)
	require.NoError(t, err)

	assert.Empty(t, got.Frontmatter)
	assert.Equal(t, "plain body\n", got.Body)
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("data"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestWriteFileAtomicFailurePreservesOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.txt")

	// Target directory does not exist, so the temp write fails.
	err := WriteFileAtomic(path, []byte("data"), 0644)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAtomicWrite)
	assert.False(t, Exists(path))
}

func TestWriteBodyWritesPlainContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "prd_snapshot.md")

	require.NoError(t, WriteBody(path, "# PRD\n\nbody text\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# PRD\n\nbody text\n", string(data))
}

func TestAcquireLockBlocksSecondHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan")

	unlock, err := AcquireLock(path, time.Second)
	require.NoError(t, err)

	_, err = AcquireLock(path, 200*time.Millisecond)
	assert.Error(t, err)

	require.NoError(t, unlock())

	unlock2, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2())
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	assert.False(t, Exists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.True(t, Exists(path))
}
