package prp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverdev/drover/internal/store"
)

func TestValidateBlueprintAccepts(t *testing.T) {
	bp := testBlueprint()
	require.NoError(t, ValidateBlueprint(&bp))
}

func TestValidateBlueprintRejectsMissingFields(t *testing.T) {
	bp := testBlueprint()
	bp.Objective = ""
	assert.Error(t, ValidateBlueprint(&bp))
}

func TestValidateBlueprintRequiresFourGates(t *testing.T) {
	bp := testBlueprint()
	bp.ValidationGates = []string{"g1", "g2", "g3"}
	assert.Error(t, ValidateBlueprint(&bp))

	bp.ValidationGates = []string{"g1", "g2", "g3", "g4", "g5"}
	assert.Error(t, ValidateBlueprint(&bp))
}

func TestValidateBlueprintRequiresSteps(t *testing.T) {
	bp := testBlueprint()
	bp.ImplementationSteps = nil
	assert.Error(t, ValidateBlueprint(&bp))
}

func TestRenderMarkdownRoundTrip(t *testing.T) {
	bp := testBlueprint()
	bp.References = []string{"docs/design.md"}
	doc := bp.RenderMarkdown("P1.M1.T1.S1", "cachekey123")

	path := filepath.Join(t.TempDir(), "P1.M1.T1.S1.md")
	require.NoError(t, store.WriteDocument(path, doc))

	got, err := store.ReadDocument(path)
	require.NoError(t, err)

	assert.Equal(t, "P1.M1.T1.S1", store.GetString(got.Frontmatter, "task_id"))
	assert.Equal(t, "cachekey123", store.GetString(got.Frontmatter, "cache_key"))
	assert.Contains(t, got.Body, "# PRP: P1.M1.T1.S1")
	assert.Contains(t, got.Body, "## Implementation Steps")
	assert.Contains(t, got.Body, "1. step one")
	assert.Contains(t, got.Body, "## References")
}
