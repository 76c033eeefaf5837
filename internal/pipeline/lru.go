package pipeline

import (
	"container/list"
	"image"
	"sync"
)

// memoryCache is a cost-bounded LRU of decoded images. Cost is the RGBA
// footprint of the image bounds.
type memoryCache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type memoryEntry struct {
	key  string
	img  image.Image
	cost int64
}

func newMemoryCache(budget int64) *memoryCache {
	return &memoryCache{
		budget:  budget,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func imageCost(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

func (c *memoryCache) Get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).img, true
}

// Add inserts img and evicts from the back until the budget holds. Images
// larger than the whole budget are not cached.
func (c *memoryCache) Add(key string, img image.Image) {
	cost := imageCost(img)
	if cost > c.budget {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
	c.entries[key] = c.order.PushFront(&memoryEntry{key: key, img: img, cost: cost})
	c.used += cost

	for c.used > c.budget {
		c.removeElement(c.order.Back())
	}
}

func (c *memoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
	c.used -= entry.cost
}

func (c *memoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.used = 0
}

// Bytes returns the summed cost of cached images.
func (c *memoryCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
