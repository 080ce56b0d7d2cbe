// Package navcache remembers the navigation path of a successful agent
// run, keyed by target URL, so a later run against the same program can
// retrace instead of exploring from scratch. A hint is advisory: the
// agent falls back to free exploration when the retraced path dead-ends.
package navcache

import (
	"encoding/json"
	"strings"
	"sync"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// Cache is a mutex-guarded in-memory path cache. The orchestrator seeds
// it from persisted records at startup and records fresh paths after
// each successful run.
type Cache struct {
	mu    sync.RWMutex
	paths map[string][]types.NavigationStep
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{paths: make(map[string][]types.NavigationStep)}
}

// Record stores the path taken for a target URL. Unusable paths are
// dropped so a later Lookup never returns a hint that would only retrace
// the entry-URL bookkeeping step.
func (c *Cache) Record(targetURL string, path []types.NavigationStep) {
	key := normalizeKey(targetURL)
	if key == "" || !Usable(path) {
		return
	}

	cp := make([]types.NavigationStep, len(path))
	copy(cp, path)

	c.mu.Lock()
	c.paths[key] = cp
	c.mu.Unlock()
	logging.Verify("navcache: recorded %d-step path for %s", len(cp), key)
}

// Lookup returns the remembered path for a target URL, or nil.
func (c *Cache) Lookup(targetURL string) []types.NavigationStep {
	c.mu.RLock()
	defer c.mu.RUnlock()
	path, ok := c.paths[normalizeKey(targetURL)]
	if !ok {
		return nil
	}
	cp := make([]types.NavigationStep, len(path))
	copy(cp, path)
	return cp
}

// Usable reports whether a path carries enough real navigation to serve
// as a retrace hint. A path with fewer than two entries is only usable
// when its single entry is a real step, not the auto-injected
// "open entry URL" bookkeeping record.
func Usable(path []types.NavigationStep) bool {
	switch len(path) {
	case 0:
		return false
	case 1:
		return !path[0].AutoInjected
	default:
		return true
	}
}

// HintedPrompt appends a prior-path hint to a base agent prompt. When
// the path is unusable the base prompt is returned unchanged.
func HintedPrompt(base string, path []types.NavigationStep) string {
	if !Usable(path) {
		return base
	}

	encoded, err := json.MarshalIndent(path, "", "  ")
	if err != nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## 이전 탐색 경로 (참고)\n")
	b.WriteString("이전 검증에서 아래 경로로 정책 페이지에 도달했습니다. 먼저 이 경로를 그대로 따라가 보고, ")
	b.WriteString("경로가 더 이상 유효하지 않으면 처음부터 다시 탐색하세요.\n")
	b.WriteString("```json\n")
	b.Write(encoded)
	b.WriteString("\n```\n")
	return b.String()
}

// normalizeKey canonicalizes a URL for cache keying: scheme and host are
// case-insensitive, trailing slashes and fragments do not distinguish
// targets.
func normalizeKey(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return ""
	}
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")

	// Lowercase scheme://host only; path and query stay as-is.
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return strings.ToLower(u[:i+3]+rest[:j]) + rest[j:]
		}
		return strings.ToLower(u)
	}
	return u
}
