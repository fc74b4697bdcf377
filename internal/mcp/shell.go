package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/store"
)

// RunInput is the input schema for bash__run.
type RunInput struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute"`
	Timeout string `json:"timeout,omitempty" jsonschema:"description=Duration string, default 2m"`
}

// RunOutput is the result of bash__run.
type RunOutput struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// ReadInput is the input schema for fs__read.
type ReadInput struct {
	Path string `json:"path" jsonschema:"required"`
}

// WriteInput is the input schema for fs__write.
type WriteInput struct {
	Path    string `json:"path" jsonschema:"required"`
	Content string `json:"content" jsonschema:"required"`
}

// RegisterShellTools registers the bash and filesystem server tools rooted
// at workDir. Filesystem paths are confined to workDir.
func RegisterShellTools(r *Registry, workDir string) error {
	tools := []Tool{
		{
			Server:      "bash",
			Name:        "run",
			Description: "Run a shell command in the work directory",
			InputSchema: agent.ReflectType[RunInput](),
			Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in RunInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("decoding run input: %w", err)
				}
				if strings.TrimSpace(in.Command) == "" {
					return nil, fmt.Errorf("command is required")
				}

				timeout := 2 * time.Minute
				if in.Timeout != "" {
					if d, err := time.ParseDuration(in.Timeout); err == nil {
						timeout = d
					}
				}
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
				cmd.Dir = workDir
				out, err := cmd.CombinedOutput()
				result := RunOutput{Output: string(out)}
				if exitErr, ok := err.(*exec.ExitError); ok {
					result.ExitCode = exitErr.ExitCode()
				} else if err != nil {
					return nil, fmt.Errorf("running command: %w", err)
				}
				return result, nil
			},
		},
		{
			Server:      "fs",
			Name:        "read",
			Description: "Read a file relative to the work directory",
			InputSchema: agent.ReflectType[ReadInput](),
			Handler: func(_ context.Context, input json.RawMessage) (any, error) {
				var in ReadInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("decoding read input: %w", err)
				}
				path, err := confine(workDir, in.Path)
				if err != nil {
					return nil, err
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, err
				}
				return string(data), nil
			},
		},
		{
			Server:      "fs",
			Name:        "write",
			Description: "Write a file relative to the work directory (atomic)",
			InputSchema: agent.ReflectType[WriteInput](),
			Handler: func(_ context.Context, input json.RawMessage) (any, error) {
				var in WriteInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("decoding write input: %w", err)
				}
				path, err := confine(workDir, in.Path)
				if err != nil {
					return nil, err
				}
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return nil, err
				}
				if err := store.WriteFileAtomic(path, []byte(in.Content), 0644); err != nil {
					return nil, err
				}
				return map[string]any{"written": len(in.Content)}, nil
			},
		},
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// confine resolves a path inside workDir and rejects escapes.
func confine(workDir, path string) (string, error) {
	full := filepath.Clean(filepath.Join(workDir, path))
	rel, err := filepath.Rel(workDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the work directory", path)
	}
	return full, nil
}
