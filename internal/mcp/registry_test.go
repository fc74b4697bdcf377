package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndCall(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(Tool{
		Server: "demo", Name: "echo",
		Handler: func(_ context.Context, input json.RawMessage) (any, error) {
			var in map[string]string
			_ = json.Unmarshal(input, &in)
			return in["msg"], nil
		},
	}))

	out, err := r.Call(context.Background(), "demo__echo", map[string]string{"msg": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	tool := Tool{
		Server: "demo", Name: "x",
		Handler: func(context.Context, json.RawMessage) (any, error) { return nil, nil },
	}
	require.NoError(t, r.Register(tool))
	assert.Error(t, r.Register(tool))
}

func TestRegistryRejectsIncompleteTools(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Tool{Name: "x"}))
	assert.Error(t, r.Register(Tool{Server: "s", Name: "x"})) // no handler
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "nope__missing", nil)
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	h := func(context.Context, json.RawMessage) (any, error) { return nil, nil }
	require.NoError(t, r.Register(Tool{Server: "b", Name: "z", Handler: h}))
	require.NoError(t, r.Register(Tool{Server: "a", Name: "y", Handler: h}))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a__y", list[0].FullName())
	assert.Equal(t, "b__z", list[1].FullName())
}

func TestShellToolsRunAndFilesystem(t *testing.T) {
	workDir := t.TempDir()
	r := NewRegistry()
	require.NoError(t, RegisterShellTools(r, workDir))

	out, err := r.Call(context.Background(), "bash__run", RunInput{Command: "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, out.(RunOutput).Output, "hi")

	out, err = r.Call(context.Background(), "bash__run", RunInput{Command: "exit 4"})
	require.NoError(t, err)
	assert.Equal(t, 4, out.(RunOutput).ExitCode)

	_, err = r.Call(context.Background(), "fs__write", WriteInput{Path: "sub/a.txt", Content: "data"})
	require.NoError(t, err)

	got, err := r.Call(context.Background(), "fs__read", ReadInput{Path: "sub/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "data", got)

	data, err := os.ReadFile(filepath.Join(workDir, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestShellToolsConfinePaths(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterShellTools(r, t.TempDir()))

	_, err := r.Call(context.Background(), "fs__read", ReadInput{Path: "../outside.txt"})
	assert.Error(t, err)

	_, err = r.Call(context.Background(), "fs__write", WriteInput{Path: "../../etc/passwd", Content: "x"})
	assert.Error(t, err)
}
