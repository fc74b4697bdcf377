package prp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/store"
)

// cacheVersion is bumped when the entry layout changes incompatibly.
const cacheVersion = 1

// CacheEntry is the stored metadata at PRP/.cache/<subtask-id>.json.
// Readers default missing fields rather than reject, so entries written by
// older versions still load.
type CacheEntry struct {
	TaskID     string    `json:"taskId"`
	TaskHash   string    `json:"taskHash"`
	CreatedAt  time.Time `json:"createdAt"`
	AccessedAt time.Time `json:"accessedAt"`
	Version    int       `json:"version"`
	PRP        Blueprint `json:"prp"`

	// Optional compression diagnostics.
	CompressionLevel int     `json:"compressionLevel,omitempty"`
	InputTokens      int     `json:"inputTokens,omitempty"`
	OutputTokens     int     `json:"outputTokens,omitempty"`
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
	OriginalSize     int     `json:"originalSize,omitempty"`
	CompressedSize   int     `json:"compressedSize,omitempty"`
}

// CacheKey derives the content hash that identifies a generation: the
// subtask's identity and contract plus its ancestor ids up to the phase.
// Dependencies are sorted so declaration order does not churn the key.
func CacheKey(sub *backlog.Subtask) string {
	deps := append([]string(nil), sub.Dependencies...)
	sort.Strings(deps)

	h := sha256.New()
	for _, part := range []string{
		sub.ID,
		sub.Title,
		fmt.Sprintf("%d", sub.StoryPoints),
		strings.Join(deps, ","),
		sub.ContextScope,
		strings.Join(backlog.Ancestors(sub.ID), ","),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LoadCache reads a cache entry, returning nil without error when absent or
// unreadable (a cache miss, never a failure).
func LoadCache(path string) *CacheEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Debug("discarding unreadable cache entry", "path", path, "error", err)
		return nil
	}
	return &entry
}

// Fresh reports whether the entry matches the current key and is younger
// than the TTL.
func (e *CacheEntry) Fresh(key string, ttl time.Duration, now time.Time) bool {
	if e == nil || e.TaskHash != key {
		return false
	}
	return now.Sub(e.CreatedAt) < ttl
}

// SaveCache writes a cache entry atomically.
func SaveCache(path string, entry *CacheEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return store.WriteFileAtomic(path, data, 0644)
}

// TouchCache updates only the accessedAt field in place, leaving the stored
// blueprint bytes untouched.
func TouchCache(path string, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	updated, err := sjson.SetBytes(data, "accessedAt", now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("updating accessedAt: %w", err)
	}
	return store.WriteFileAtomic(path, updated, 0644)
}
