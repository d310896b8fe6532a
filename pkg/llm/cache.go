package llm

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

// CompletionCache memoises completions keyed by a stable hash of
// (prompt, response schema, model). Entries are scoped to a run: call Reset
// between runs so repeated executions in one process never observe stale
// completions. The cache is invisible to callers above the client.
type CompletionCache struct {
	mu      sync.RWMutex
	entries map[string]Response
}

// NewCompletionCache creates an empty cache.
func NewCompletionCache() *CompletionCache {
	return &CompletionCache{entries: make(map[string]Response)}
}

// Reset drops all cached completions.
func (c *CompletionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Response)
}

// Len returns the number of cached completions.
func (c *CompletionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// WrapComplete implements Middleware.
func (c *CompletionCache) WrapComplete(next CompleteFunc) CompleteFunc {
	return func(ctx context.Context, req Request) (Response, error) {
		key := cacheKey(req)

		c.mu.RLock()
		cached, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		resp, err := next(ctx, req)
		if err != nil {
			return Response{}, err
		}

		c.mu.Lock()
		c.entries[key] = resp
		c.mu.Unlock()
		return resp, nil
	}
}

// cacheKey hashes the request fields that determine the completion.
func cacheKey(req Request) string {
	hasher := blake3.New()
	_, _ = hasher.WriteString(req.Model)
	_, _ = hasher.WriteString("\x00")
	_, _ = hasher.WriteString(req.Prompt)
	_, _ = hasher.WriteString("\x00")
	_, _ = hasher.Write(req.ResponseSchema)
	return hex.EncodeToString(hasher.Sum(nil))
}
