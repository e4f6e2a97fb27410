package cache

import (
	"sort"
	"sync"

	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

// ViewCache keeps the latest rendered view of every kind for read-only
// surfaces (HTTP, gRPC). It is a view.Renderer.
type ViewCache struct {
	mu    sync.RWMutex
	views map[view.Kind]view.View
}

func NewViewCache() *ViewCache {
	return &ViewCache{
		views: make(map[view.Kind]view.View),
	}
}

func (c *ViewCache) Render(v view.View) error {
	c.mu.Lock()
	c.views[v.Kind] = v
	c.mu.Unlock()
	return nil
}

func (c *ViewCache) Get(kind view.Kind) (view.View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[kind]
	return v, ok
}

func (c *ViewCache) Kinds() []view.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]view.Kind, 0, len(c.views))
	for k := range c.views {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
