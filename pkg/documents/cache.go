package documents

import (
	"container/list"
	"sync"
)

// bundleCache keeps the most recently used resolved bundles.
type bundleCache struct {
	mu       sync.Mutex
	capacity int
	list     *list.List
	cache    map[string]*list.Element
}

type cacheEntry struct {
	key    string
	bundle *bundle
}

func newBundleCache(capacity int) *bundleCache {
	if capacity < 1 {
		capacity = 1
	}
	return &bundleCache{
		capacity: capacity,
		list:     list.New(),
		cache:    make(map[string]*list.Element),
	}
}

func (c *bundleCache) Get(key string) (*bundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.cache[key]; exists {
		c.list.MoveToFront(element)
		return element.Value.(*cacheEntry).bundle, true
	}
	return nil, false
}

func (c *bundleCache) Put(key string, b *bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.cache[key]; exists {
		element.Value.(*cacheEntry).bundle = b
		c.list.MoveToFront(element)
		return
	}

	element := c.list.PushFront(&cacheEntry{key: key, bundle: b})
	c.cache[key] = element

	if c.list.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *bundleCache) evictOldest() {
	element := c.list.Back()
	if element != nil {
		delete(c.cache, element.Value.(*cacheEntry).key)
		c.list.Remove(element)
	}
}

func (c *bundleCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.cache[key]; exists {
		delete(c.cache, key)
		c.list.Remove(element)
	}
}

func (c *bundleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
