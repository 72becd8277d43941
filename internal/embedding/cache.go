package embedding

import (
	"container/list"
	"sync"
)

// EmbeddingCache is an LRU cache for embeddings keyed by provider and text.
type EmbeddingCache struct {
	capacity int
	cache    map[cacheKey]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

// Vectors from different providers live in different spaces, so the provider is part of the key.
type cacheKey struct {
	provider string
	text     string
}

type cacheEntry struct {
	key   cacheKey
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[cacheKey]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding of text by provider if present.
func (c *EmbeddingCache) Get(provider, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[cacheKey{provider, text}]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(provider, text string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{provider, text}
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
