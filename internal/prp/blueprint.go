// Package prp implements the per-subtask lifecycle: blueprint generation via
// the researcher agent, execution via the coder agent, four progressive
// validation gates, commit, checkpointing, and the blueprint cache.
package prp

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/droverdev/drover/internal/store"
)

// Blueprint is the generated per-subtask implementation document (the PRP).
// ValidationGates always holds four entries, one per gate level.
type Blueprint struct {
	Objective           string   `json:"objective" validate:"required"`
	Context             string   `json:"context" validate:"required"`
	ImplementationSteps []string `json:"implementationSteps" validate:"required,min=1,dive,required"`
	ValidationGates     []string `json:"validationGates" validate:"required,len=4,dive,required"`
	SuccessCriteria     []string `json:"successCriteria" validate:"required,min=1,dive,required"`
	References          []string `json:"references"`
}

var blueprintValidate = validator.New(validator.WithRequiredStructEnabled())

// ValidateBlueprint checks a blueprint against its schema. Failures trigger
// regeneration in the generator's retry loop.
func ValidateBlueprint(b *Blueprint) error {
	if err := blueprintValidate.Struct(b); err != nil {
		return fmt.Errorf("blueprint schema: %w", err)
	}
	return nil
}

// RenderMarkdown produces the on-disk markdown representation written to
// PRP/<subtask-id>.md. The frontmatter carries the identity of the generation.
func (b *Blueprint) RenderMarkdown(subtaskID, cacheKey string) *store.Document {
	var body strings.Builder

	fmt.Fprintf(&body, "# PRP: %s\n\n", subtaskID)
	body.WriteString("## Objective\n\n")
	body.WriteString(b.Objective)
	body.WriteString("\n\n## Context\n\n")
	body.WriteString(b.Context)
	body.WriteString("\n\n## Implementation Steps\n\n")
	for i, step := range b.ImplementationSteps {
		fmt.Fprintf(&body, "%d. %s\n", i+1, step)
	}
	body.WriteString("\n## Validation Gates\n\n")
	for i, gate := range b.ValidationGates {
		fmt.Fprintf(&body, "%d. %s\n", i+1, gate)
	}
	body.WriteString("\n## Success Criteria\n\n")
	for _, c := range b.SuccessCriteria {
		fmt.Fprintf(&body, "- %s\n", c)
	}
	if len(b.References) > 0 {
		body.WriteString("\n## References\n\n")
		for _, r := range b.References {
			fmt.Fprintf(&body, "- %s\n", r)
		}
	}

	return &store.Document{
		Frontmatter: map[string]any{
			"task_id":      subtaskID,
			"cache_key":    cacheKey,
			"generated_at": store.Now(),
		},
		Body: body.String(),
	}
}
