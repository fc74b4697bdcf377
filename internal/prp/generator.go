package prp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/store"
)

// Ancestor-context compression limits: at most two levels of parent context,
// each truncated to 100 characters.
const (
	ancestorLevels   = 2
	ancestorMaxChars = 100
)

// Generate produces the blueprint for a subtask, consulting the cache first.
// A fresh cache entry short-circuits the researcher call; otherwise the
// researcher agent is prompted and its response validated against the
// blueprint schema, retrying on schema failure. The blueprint markdown and
// cache metadata are written on success.
func (r *Runtime) Generate(ctx context.Context, sub *backlog.Subtask, b *backlog.Backlog) (*Blueprint, error) {
	key := CacheKey(sub)
	cachePath := r.mgr.Session().CachePath(sub.ID)
	prpPath := r.mgr.Session().BlueprintPath(sub.ID)

	if entry := LoadCache(cachePath); entry.Fresh(key, r.cacheTTL, r.now()) {
		slog.Info("blueprint cache hit", "subtask", sub.ID)
		if err := TouchCache(cachePath, r.now()); err != nil {
			slog.Warn("failed to touch cache entry", "subtask", sub.ID, "error", err)
		}
		if !store.Exists(prpPath) {
			if err := store.WriteDocument(prpPath, entry.PRP.RenderMarkdown(sub.ID, key)); err != nil {
				return nil, err
			}
		}
		bp := entry.PRP
		return &bp, nil
	}

	prompt := r.buildResearchPrompt(sub, b)
	schema := agent.ReflectType[Blueprint]()

	bp, err := agent.Retry(ctx, r.retry, "blueprint-generate", func(error) bool { return true },
		func() (*Blueprint, error) {
			raw, err := r.agents.Researcher.Prompt(ctx, agent.PromptSpec{
				System:      researcherSystem,
				User:        prompt,
				Schema:      schema,
				Model:       r.models.Researcher,
				Temperature: r.temperature,
				MaxTokens:   r.maxTokens,
			})
			if err != nil {
				return nil, err
			}
			var out Blueprint
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, fmt.Errorf("decoding blueprint: %w", err)
			}
			if err := ValidateBlueprint(&out); err != nil {
				return nil, err
			}
			return &out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBlueprintGeneration, sub.ID, err)
	}

	if err := store.WriteDocument(prpPath, bp.RenderMarkdown(sub.ID, key)); err != nil {
		return nil, err
	}

	now := r.now()
	entry := &CacheEntry{
		TaskID:     sub.ID,
		TaskHash:   key,
		CreatedAt:  now,
		AccessedAt: now,
		Version:    cacheVersion,
		PRP:        *bp,
	}
	if err := SaveCache(cachePath, entry); err != nil {
		slog.Warn("failed to write cache entry", "subtask", sub.ID, "error", err)
	}

	slog.Info("generated blueprint", "subtask", sub.ID, "path", prpPath)
	return bp, nil
}

const researcherSystem = `You are a software research agent. Given a subtask
from a development backlog, produce a precise implementation blueprint: the
objective, the context an implementer needs, ordered implementation steps,
one validation description per gate level (syntax, unit, integration,
manual), success criteria, and references.`

// buildResearchPrompt composes the researcher prompt from the subtask, its
// contract, and compressed ancestor context.
func (r *Runtime) buildResearchPrompt(sub *backlog.Subtask, b *backlog.Backlog) string {
	var buf strings.Builder

	buf.WriteString("## Subtask\n\n")
	fmt.Fprintf(&buf, "**ID**: %s\n", sub.ID)
	fmt.Fprintf(&buf, "**Title**: %s\n", sub.Title)
	fmt.Fprintf(&buf, "**Story points**: %d\n", sub.StoryPoints)
	if len(sub.Dependencies) > 0 {
		fmt.Fprintf(&buf, "**Dependencies**: %s\n", strings.Join(sub.Dependencies, ", "))
	}

	buf.WriteString("\n## Contract\n\n")
	buf.WriteString(sub.ContextScope)
	buf.WriteString("\n")

	if b != nil {
		ancestors := backlog.Ancestors(sub.ID)
		// Nearest ancestors carry the most relevant context.
		if len(ancestors) > ancestorLevels {
			ancestors = ancestors[len(ancestors)-ancestorLevels:]
		}
		if len(ancestors) > 0 {
			buf.WriteString("\n## Parent Context\n\n")
			for _, id := range ancestors {
				if it, ok := b.Find(id); ok {
					fmt.Fprintf(&buf, "- %s: %s\n", it.ID, compress(it.Title, ancestorMaxChars))
				}
			}
		}
	}

	buf.WriteString("\nProduce the implementation blueprint for this subtask.\n")
	return buf.String()
}

// compress truncates context text to the compression limit.
func compress(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
