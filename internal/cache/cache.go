// Package cache provides a thread-safe generic cache and the rendered preview cache.
package cache

import "sync"

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// GetOrCompute returns the cached value for key, calling compute on a miss.
// Errors are returned as-is and nothing is stored.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}
	val, err := compute()
	if err != nil {
		return val, err
	}
	c.Set(key, val)
	return val, nil
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
}

// RenderKey identifies one rendering of a markdown source.
type RenderKey struct {
	Renderer    string
	ContentHash string
	SyntaxTheme string
}

// Rendered is a cached preview fragment.
type Rendered struct {
	HTML []byte
	// Renderer specific data, such as the decoded front matter.
	Extra any
}

var renderedMarkdownCache = NewCache[RenderKey, *Rendered]()

func GetRenderedMarkdown(key RenderKey) (*Rendered, bool) {
	return renderedMarkdownCache.Get(key)
}

func SetRenderedMarkdown(key RenderKey, html []byte, extra any) {
	renderedMarkdownCache.Set(key, &Rendered{
		HTML:  html,
		Extra: extra,
	})
}

func RenderedMarkdownLen() int {
	return renderedMarkdownCache.Len()
}

func ClearRenderedMarkdownCache() {
	renderedMarkdownCache.Clear()
}
