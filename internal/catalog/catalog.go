package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

type Source interface {
	ListMenu(ctx context.Context) ([]models.MenuItem, error)
}

type Filter struct {
	Category string
	Search   string
}

// Apply keeps items of the exact category (when set) whose name contains
// the search text, ignoring case. Order is preserved.
func (f Filter) Apply(items []models.MenuItem) []models.MenuItem {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.MenuItem, 0, len(items))
	for _, it := range items {
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.Name), search) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Catalog fetches the menu once and filters it locally afterwards.
type Catalog struct {
	src      Source
	renderer view.Renderer
	notifier notify.Notifier
	log      logrus.FieldLogger

	mu     sync.Mutex
	items  []models.MenuItem
	loaded bool
}

func New(src Source, renderer view.Renderer, notifier notify.Notifier, log logrus.FieldLogger) *Catalog {
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Catalog{src: src, renderer: renderer, notifier: notifier, log: log.WithField("view", "menu")}
}

// Load renders the filtered menu, fetching it on first use. A failed fetch
// renders the failure placeholder and is retried on the next call.
func (c *Catalog) Load(ctx context.Context, f Filter) (view.View, error) {
	items, err := c.fetch(ctx)
	if err != nil {
		c.log.WithError(err).Error("menu fetch failed")
		c.notifier.Notify(notify.New(notify.LevelError, "menu", "Failed to load menu"))
		v := view.View{Kind: view.KindMenu, Placeholder: view.PlaceholderMenuFailed, RenderedAt: time.Now().UTC()}
		_ = c.renderer.Render(v)
		return v, err
	}
	v := view.Menu(f.Apply(items))
	v.RenderedAt = time.Now().UTC()
	return v, c.renderer.Render(v)
}

func (c *Catalog) fetch(ctx context.Context) ([]models.MenuItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.items, nil
	}
	items, err := c.src.ListMenu(ctx)
	if err != nil {
		return nil, err
	}
	c.items = items
	c.loaded = true
	return items, nil
}

// Categories lists the distinct categories of the loaded menu in first-seen
// order.
func (c *Catalog) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, it := range c.items {
		if _, ok := seen[it.Category]; ok || it.Category == "" {
			continue
		}
		seen[it.Category] = struct{}{}
		out = append(out, it.Category)
	}
	return out
}
