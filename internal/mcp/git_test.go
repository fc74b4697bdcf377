package mcp

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	cmd := exec.Command("sh", "-c", "printf %s '"+content+"' > "+filepath.Join(dir, name))
	require.NoError(t, cmd.Run())
}

func TestGitStatusAndCommit(t *testing.T) {
	dir := initRepo(t)
	r := NewRegistry()
	require.NoError(t, RegisterGitTools(r, dir))

	writeFile(t, dir, "a.txt", "hello")

	out, err := r.Call(context.Background(), "git__status", struct{}{})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "a.txt")

	_, err = r.Call(context.Background(), "git__commit", CommitInput{Message: "P1.M1.T1.S1: add a.txt"})
	require.NoError(t, err)

	out, err = r.Call(context.Background(), "git__status", struct{}{})
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out.(string)), "working tree should be clean after commit")
}

func TestGitCommitRequiresMessage(t *testing.T) {
	dir := initRepo(t)
	r := NewRegistry()
	require.NoError(t, RegisterGitTools(r, dir))

	_, err := r.Call(context.Background(), "git__commit", CommitInput{Message: "  "})
	assert.Error(t, err)
}
