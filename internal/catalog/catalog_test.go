package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/backend/backendtest"
	"gitlab.ozon.dev/qwestard/possync/internal/cache"
	"gitlab.ozon.dev/qwestard/possync/internal/logger"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

var menu = []models.MenuItem{
	{ID: 1, Name: "Masala Tea", Category: "Drinks", Price: decimal.NewFromInt(2), Available: true},
	{ID: 2, Name: "Garlic Naan", Category: "Breads", Price: decimal.NewFromInt(3), Available: true},
	{ID: 3, Name: "Iced tea", Category: "Drinks", Price: decimal.NewFromInt(2)},
}

func TestFilter(t *testing.T) {
	names := func(items []models.MenuItem) []string {
		out := []string{}
		for _, it := range items {
			out = append(out, it.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Masala Tea", "Iced tea"}, names(Filter{Search: "TEA"}.Apply(menu)))
	assert.Equal(t, []string{"Garlic Naan"}, names(Filter{Category: "Breads"}.Apply(menu)))
	assert.Equal(t, []string{"Iced tea"}, names(Filter{Category: "Drinks", Search: "iced"}.Apply(menu)))
	assert.Empty(t, Filter{Category: "drinks"}.Apply(menu))
	assert.Len(t, Filter{}.Apply(menu), 3)
}

func TestLoadFetchesOnce(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetMenu(menu...)
	views := cache.NewViewCache()
	c := New(backend.NewClient(srv.URL, time.Second), views, nil, logger.Discard())
	ctx := context.Background()

	v, err := c.Load(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, v.Menu, 3)

	v, err = c.Load(ctx, Filter{Search: "pizza"})
	require.NoError(t, err)
	assert.Equal(t, view.PlaceholderMenu, v.Placeholder)

	assert.Equal(t, 1, srv.Calls("GET /api/menu"))
	cached, ok := views.Get(view.KindMenu)
	require.True(t, ok)
	assert.True(t, cached.Empty())
	assert.Equal(t, []string{"Drinks", "Breads"}, c.Categories())
}

func TestLoadFailureRendersPlaceholderAndRetries(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetMenu(menu...)
	srv.FailLists(true)
	ch := notify.NewChannel(4, 4)
	c := New(backend.NewClient(srv.URL, time.Second), cache.NewViewCache(), ch, logger.Discard())
	ctx := context.Background()

	v, err := c.Load(ctx, Filter{})
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Equal(t, view.PlaceholderMenuFailed, v.Placeholder)
	require.Len(t, ch.Recent(), 1)
	assert.Equal(t, "Failed to load menu", ch.Recent()[0].Message)

	srv.FailLists(false)
	v, err = c.Load(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, v.Menu, 3)
	assert.Equal(t, 2, srv.Calls("GET /api/menu"))
}
