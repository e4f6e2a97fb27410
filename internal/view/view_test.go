package view

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
)

func order(id int64, total int64, st models.Status) models.Order {
	return models.Order{ID: id, Total: decimal.NewFromInt(total), Status: st, Items: models.Items{}}
}

func TestSummarize(t *testing.T) {
	agg := Summarize([]models.Order{
		order(1, 100, models.StatusServed),
		order(2, 50, models.StatusPreparing),
	})
	assert.Equal(t, 2, agg.Count)
	assert.Equal(t, 1, agg.Pending)
	assert.True(t, decimal.NewFromInt(100).Equal(agg.Revenue))
}

func TestSummarizeClosedCountsAsRevenue(t *testing.T) {
	agg := Summarize([]models.Order{
		order(1, 40, models.StatusClosed),
		order(2, 60, models.StatusServed),
		order(3, 70, models.StatusReady),
	})
	assert.Equal(t, "100", agg.Revenue.String())
	assert.Equal(t, 1, agg.Pending)
}

func TestEmptyViews(t *testing.T) {
	for _, tc := range []struct {
		name string
		v    View
		want string
	}{
		{"operations", Operations([]models.Order{}), PlaceholderOperations},
		{"kitchen", Kitchen(nil), PlaceholderKitchen},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.Placeholder)
			assert.True(t, tc.v.Empty())
			assert.Zero(t, tc.v.Rows())
			require.NotNil(t, tc.v.Aggregates)
			assert.Zero(t, tc.v.Aggregates.Count)
			assert.Zero(t, tc.v.Aggregates.Pending)
			assert.True(t, tc.v.Aggregates.Revenue.IsZero())
		})
	}
	assert.Equal(t, PlaceholderAdditions, Additions(nil).Placeholder)
	assert.Equal(t, PlaceholderMenu, Menu(nil).Placeholder)
}

func TestKitchenFiltersAndKeepsOrder(t *testing.T) {
	v := Kitchen([]models.Order{
		order(5, 10, models.StatusReady),
		order(3, 10, models.StatusServed),
		order(9, 10, models.StatusReceived),
		order(1, 10, models.StatusPreparing),
	})
	ids := make([]int64, 0, len(v.Orders))
	for _, o := range v.Orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{5, 9, 1}, ids)
	assert.Empty(t, v.Placeholder)
	assert.Equal(t, 4, v.Aggregates.Count)
}

func TestKitchenOnlyTerminalShowsPlaceholder(t *testing.T) {
	v := Kitchen([]models.Order{order(1, 10, models.StatusServed)})
	assert.Equal(t, PlaceholderKitchen, v.Placeholder)
	assert.Equal(t, 1, v.Aggregates.Count)
}

func TestMultiRendersAllAndJoinsErrors(t *testing.T) {
	var got []Kind
	boom := errors.New("boom")
	m := Multi{
		RenderFunc(func(v View) error { got = append(got, v.Kind); return boom }),
		RenderFunc(func(v View) error { got = append(got, v.Kind); return nil }),
	}
	err := m.Render(View{Kind: KindMenu})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Kind{KindMenu, KindMenu}, got)
	assert.NoError(t, Multi{}.Render(View{}))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("kitchen")
	assert.True(t, ok)
	assert.Equal(t, KindKitchen, k)
	_, ok = ParseKind("billing")
	assert.False(t, ok)
}
