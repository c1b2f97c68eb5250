package settings

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const promptFlightKey = "default_system_prompt"

// PromptCache is a single-slot cache for the default system prompt.
// Concurrent misses share one load. A load that started before an
// Invalidate still answers its callers but is never stored, so the slot
// cannot hold a value older than the last invalidation.
type PromptCache struct {
	mu    sync.Mutex
	value string
	valid bool
	gen   uint64
	group singleflight.Group
}

// Get returns the cached value, calling load to populate the slot on a miss.
// Load errors are returned and leave the slot empty.
func (c *PromptCache) Get(ctx context.Context, load func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	if c.valid {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(promptFlightKey, func() (interface{}, error) {
		c.mu.Lock()
		if c.valid {
			// Filled by a flight that finished after our check above.
			val := c.value
			c.mu.Unlock()
			return val, nil
		}
		c.mu.Unlock()

		val, err := load(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.value = val
			c.valid = true
		}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate empties the slot. The next Get reloads.
func (c *PromptCache) Invalidate() {
	c.mu.Lock()
	c.value = ""
	c.valid = false
	c.gen++
	c.mu.Unlock()
	c.group.Forget(promptFlightKey)
}

// Peek reports the cached value without loading.
func (c *PromptCache) Peek() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.valid
}
