package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/droverdev/drover/internal/agent"
)

// StatusInput is the (empty) input schema for git__status.
type StatusInput struct{}

// CommitInput is the input schema for git__commit.
type CommitInput struct {
	Message string `json:"message" jsonschema:"required,description=Commit message"`
}

// DiffInput is the input schema for git__diff.
type DiffInput struct {
	Staged bool `json:"staged,omitempty" jsonschema:"description=Diff the index instead of the working tree"`
}

// RegisterGitTools registers the git server tools against a repository.
func RegisterGitTools(r *Registry, repoDir string) error {
	tools := []Tool{
		{
			Server:      "git",
			Name:        "status",
			Description: "Show the working tree status (porcelain format)",
			InputSchema: agent.ReflectType[StatusInput](),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return gitOutput(ctx, repoDir, "status", "--porcelain")
			},
		},
		{
			Server:      "git",
			Name:        "diff",
			Description: "Show uncommitted changes",
			InputSchema: agent.ReflectType[DiffInput](),
			Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in DiffInput
				_ = json.Unmarshal(input, &in)
				args := []string{"diff"}
				if in.Staged {
					args = append(args, "--cached")
				}
				return gitOutput(ctx, repoDir, args...)
			},
		},
		{
			Server:      "git",
			Name:        "commit",
			Description: "Stage all changes and commit with the given message",
			InputSchema: agent.ReflectType[CommitInput](),
			Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in CommitInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("decoding commit input: %w", err)
				}
				if strings.TrimSpace(in.Message) == "" {
					return nil, fmt.Errorf("commit message is required")
				}
				return gitCommit(ctx, repoDir, in.Message)
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

// gitOutput runs a git subcommand and returns its stdout.
func gitOutput(ctx context.Context, repoDir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// gitCommit stages all changes and commits. Returns the porcelain status of
// what was committed.
func gitCommit(ctx context.Context, repoDir, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	add := exec.CommandContext(ctx, "git", "add", "-A")
	add.Dir = repoDir
	if out, err := add.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add: %s: %w", string(out), err)
	}

	commit := exec.CommandContext(ctx, "git", "commit", "-m", message)
	commit.Dir = repoDir
	if out, err := commit.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit: %s: %w", string(out), err)
	}

	return message, nil
}
