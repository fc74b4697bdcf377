package prp

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverdev/drover/internal/backlog"
)

func testSubtask() *backlog.Subtask {
	return &backlog.Subtask{
		ID: "P1.M1.T1.S1", Type: backlog.KindSubtask, Title: "Define tables",
		Status: backlog.StatusPlanned, StoryPoints: 3,
		Dependencies: []string{"P1.M1.T1.S2"},
		ContextScope: backlog.FormatContract(&backlog.Contract{
			ResearchNote: "n", Input: "i", Logic: "l", Output: "o",
		}),
	}
}

func testBlueprint() Blueprint {
	return Blueprint{
		Objective:           "obj",
		Context:             "ctx",
		ImplementationSteps: []string{"step one"},
		ValidationGates:     []string{"g1", "g2", "g3", "g4"},
		SuccessCriteria:     []string{"works"},
	}
}

func TestCacheKeyIsStable(t *testing.T) {
	a := CacheKey(testSubtask())
	b := CacheKey(testSubtask())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCacheKeyIgnoresDependencyOrder(t *testing.T) {
	s1 := testSubtask()
	s1.Dependencies = []string{"P1.M1.T1.S2", "P1.M1.T1.S3"}
	s2 := testSubtask()
	s2.Dependencies = []string{"P1.M1.T1.S3", "P1.M1.T1.S2"}
	assert.Equal(t, CacheKey(s1), CacheKey(s2))
}

func TestCacheKeyChangesWithContract(t *testing.T) {
	s1 := testSubtask()
	s2 := testSubtask()
	s2.ContextScope = backlog.FormatContract(&backlog.Contract{
		ResearchNote: "different", Input: "i", Logic: "l", Output: "o",
	})
	assert.NotEqual(t, CacheKey(s1), CacheKey(s2))
}

func TestCacheSaveLoadFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cache", "P1.M1.T1.S1.json")
	key := CacheKey(testSubtask())
	now := time.Now()

	entry := &CacheEntry{
		TaskID:     "P1.M1.T1.S1",
		TaskHash:   key,
		CreatedAt:  now,
		AccessedAt: now,
		Version:    cacheVersion,
		PRP:        testBlueprint(),
	}
	require.NoError(t, SaveCache(path, entry))

	got := LoadCache(path)
	require.NotNil(t, got)
	assert.True(t, got.Fresh(key, 24*time.Hour, now.Add(time.Hour)))
	assert.False(t, got.Fresh(key, 24*time.Hour, now.Add(25*time.Hour)), "expired past TTL")
	assert.False(t, got.Fresh("other-key", 24*time.Hour, now), "key mismatch")
	assert.Equal(t, "obj", got.PRP.Objective)
}

func TestLoadCacheMissIsNil(t *testing.T) {
	assert.Nil(t, LoadCache(filepath.Join(t.TempDir(), "absent.json")))

	var e *CacheEntry
	assert.False(t, e.Fresh("k", time.Hour, time.Now()))
}

func TestTouchCacheUpdatesAccessTimeOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.json")
	created := time.Now().Add(-time.Hour).Truncate(time.Second)

	entry := &CacheEntry{
		TaskID:     "P1.M1.T1.S1",
		TaskHash:   "hash",
		CreatedAt:  created,
		AccessedAt: created,
		Version:    cacheVersion,
		PRP:        testBlueprint(),
	}
	require.NoError(t, SaveCache(path, entry))

	now := time.Now()
	require.NoError(t, TouchCache(path, now))

	got := LoadCache(path)
	require.NotNil(t, got)
	assert.Equal(t, created.Unix(), got.CreatedAt.Unix())
	assert.WithinDuration(t, now, got.AccessedAt, time.Second)
	assert.Equal(t, "obj", got.PRP.Objective)
}
