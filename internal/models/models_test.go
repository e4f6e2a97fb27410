package models_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
)

func TestItemsDecodeBothForms(t *testing.T) {
	structured := `{"id":7,"table_no":3,"items":[{"name":"Naan","qty":2,"price":40}],"total":"80","status":"Received"}`
	textual := `{"id":7,"table_no":3,"items":"[{\"name\":\"Naan\",\"qty\":2,\"price\":40}]","total":80,"status":"Received"}`

	var a, b models.Order
	require.NoError(t, json.Unmarshal([]byte(structured), &a))
	require.NoError(t, json.Unmarshal([]byte(textual), &b))

	assert.Len(t, a.Items, 1)
	assert.Equal(t, "Naan", b.Items[0].Name)
	assert.True(t, a.Total.Equal(b.Total))

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestItemsDecodeEmptyForms(t *testing.T) {
	for _, raw := range []string{`null`, `""`, `"[]"`, `[]`, `"null"`} {
		var it models.Items
		require.NoError(t, json.Unmarshal([]byte(raw), &it), raw)
		assert.NotNil(t, it, raw)
		assert.Empty(t, it, raw)
	}
}

func TestItemsDecodeMalformedText(t *testing.T) {
	var it models.Items
	err := json.Unmarshal([]byte(`"[{not json"`), &it)
	assert.Error(t, err)
}

func TestItemsLine(t *testing.T) {
	it := models.Items{{Name: "Naan", Qty: 2}, {Name: "Dal", Qty: 1, Price: decimal.NewFromInt(120)}}
	assert.Equal(t, "2× Naan, 1× Dal", it.Line(", "))
	assert.Equal(t, "", models.Items{}.Line(", "))
}

func TestStatusDecodeIsCaseInsensitive(t *testing.T) {
	var o models.Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"status":"closed"}`), &o))
	assert.Equal(t, models.StatusClosed, o.Status)

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"status":"New"}`), &o))
	assert.Equal(t, models.Status("New"), o.Status)
	assert.False(t, o.Status.Known())
}

func TestNextStatusReachesFixedPoint(t *testing.T) {
	for _, start := range []models.Status{models.StatusReceived, models.StatusPreparing, models.StatusReady} {
		s := start
		steps := 0
		for !s.IsTerminal() {
			next := models.NextStatus(s)
			require.True(t, next.Rank() > s.Rank(), "step from %s must move forward", s)
			s = next
			steps++
			require.LessOrEqual(t, steps, 3)
		}
		assert.Equal(t, models.StatusServed, s)
		assert.Equal(t, s, models.NextStatus(s))
	}
	assert.Equal(t, models.StatusClosed, models.NextStatus(models.StatusClosed))
	assert.Equal(t, models.Status("weird"), models.NextStatus("weird"))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, models.CanTransition(models.StatusReceived, models.StatusPreparing))
	assert.True(t, models.CanTransition(models.StatusServed, models.StatusServed))
	assert.True(t, models.CanTransition(models.StatusServed, models.StatusClosed))
	assert.False(t, models.CanTransition(models.StatusReady, models.StatusPreparing))
	assert.False(t, models.CanTransition(models.StatusReady, "bogus"))
	assert.True(t, models.CanTransition("New", models.StatusPreparing))
}

func TestActiveSubset(t *testing.T) {
	assert.True(t, models.StatusReceived.IsActive())
	assert.True(t, models.StatusReady.IsActive())
	assert.False(t, models.StatusServed.IsActive())
	assert.False(t, models.StatusClosed.IsActive())
}
