package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/backend/backendtest"
	"gitlab.ozon.dev/qwestard/possync/internal/logger"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

type views struct {
	mu   sync.Mutex
	list []view.View
}

func (v *views) Render(x view.View) error {
	v.mu.Lock()
	v.list = append(v.list, x)
	v.mu.Unlock()
	return nil
}

func (v *views) of(kind view.Kind) []view.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []view.View
	for _, x := range v.list {
		if x.Kind == kind {
			out = append(out, x)
		}
	}
	return out
}

func newSession(t *testing.T, kind view.Kind, srv *backendtest.Server, rec *views, opts ...func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		Kind:      kind,
		Interval:  time.Hour,
		Renderer:  rec,
		Confirmer: notify.Always(true),
		Logger:    logger.Discard(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	s, err := New(backend.NewClient(srv.URL, time.Second), cfg)
	require.NoError(t, err)
	return s
}

func TestUnknownKind(t *testing.T) {
	_, err := New(backend.NewClient("http://x", time.Second), Config{Kind: view.KindMenu})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNonPositiveIntervalRejected(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, err := New(backend.NewClient("http://x", time.Second), Config{Kind: view.KindKitchen, Interval: d})
		assert.ErrorIs(t, err, ErrBadInterval)
	}
}

func TestOperationsSyncRendersOnceForUnchangedData(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetOrders(
		backendtest.Order(1, 4, 100, models.StatusServed),
		backendtest.Order(2, 6, 50, models.StatusPreparing),
	)
	rec := &views{}
	s := newSession(t, view.KindOperations, srv, rec)

	ctx := context.Background()
	require.NoError(t, s.Sync(ctx))
	require.NoError(t, s.Sync(ctx))

	got := rec.of(view.KindOperations)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Aggregates.Count)
	assert.Equal(t, 1, got[0].Aggregates.Pending)
	assert.Equal(t, "100", got[0].Aggregates.Revenue.String())
	assert.True(t, s.Healthy())
}

func TestFailedPollKeepsLastView(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetOrders(backendtest.Order(1, 4, 100, models.StatusReceived))
	rec := &views{}
	s := newSession(t, view.KindKitchen, srv, rec)

	ctx := context.Background()
	require.NoError(t, s.Sync(ctx))
	srv.FailLists(true)
	assert.ErrorIs(t, s.Sync(ctx), backend.ErrTransport)

	v, ok := s.OrdersView()
	require.True(t, ok)
	assert.Len(t, v.Orders, 1)
	assert.Len(t, rec.of(view.KindKitchen), 1)
	assert.False(t, s.Healthy())
}

func TestKitchenAdvanceThroughLifecycle(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetOrders(backendtest.Order(3, 2, 80, models.StatusReceived))
	rec := &views{}
	s := newSession(t, view.KindKitchen, srv, rec)
	ctx := context.Background()

	for _, want := range []models.Status{models.StatusPreparing, models.StatusReady, models.StatusServed} {
		require.NoError(t, s.Sync(ctx))
		got, err := s.Advance(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, s.Sync(ctx))

	kitchen := rec.of(view.KindKitchen)
	assert.Equal(t, view.PlaceholderKitchen, kitchen[len(kitchen)-1].Placeholder)

	_, err := s.Advance(ctx, 3)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestKitchenAlertsOncePerPoll(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	var alerts []int
	rec := &views{}
	s := newSession(t, view.KindKitchen, srv, rec, func(c *Config) {
		c.Alerter = notify.AlerterFunc(func(n int) { alerts = append(alerts, n) })
	})
	ctx := context.Background()

	srv.SetAdditions(models.Addition{ID: 1, ItemName: "Naan", Qty: 1}, models.Addition{ID: 2, ItemName: "Dal", Qty: 2})
	require.NoError(t, s.Sync(ctx))
	srv.SetAdditions(models.Addition{ID: 1, ItemName: "Naan", Qty: 1}, models.Addition{ID: 2, ItemName: "Dal", Qty: 2}, models.Addition{ID: 3, ItemName: "Tea", Qty: 1})
	require.NoError(t, s.Sync(ctx))

	assert.Equal(t, []int{2, 1}, alerts)
	assert.Equal(t, 3, s.SeenAdditions())

	require.NoError(t, s.MarkAdditionHandled(ctx, 1))
	require.NoError(t, s.Sync(ctx))
	v, ok := s.AdditionsView()
	require.True(t, ok)
	assert.Len(t, v.Additions, 2)
	assert.Equal(t, []int{2, 1}, alerts)
}

func TestCloseShowsReceiptAndForcesRender(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetOrders(backendtest.Order(9, 1, 70, models.StatusServed))
	var receipts []int64
	rec := &views{}
	s := newSession(t, view.KindOperations, srv, rec, func(c *Config) {
		c.Navigator = receiptNav(func(id int64) { receipts = append(receipts, id) })
	})
	ctx := context.Background()

	require.NoError(t, s.Sync(ctx))
	require.NoError(t, s.CloseOrder(ctx, 9))
	assert.Equal(t, []int64{9}, receipts)

	o, _ := srv.Order(9)
	assert.Equal(t, models.StatusClosed, o.Status)
	require.NoError(t, s.Sync(ctx))
	assert.Len(t, rec.of(view.KindOperations), 2)
}

type receiptNav func(int64)

func (f receiptNav) ShowReceipt(id int64) { f(id) }
func (f receiptNav) CloseInput()          {}

func TestStartAndCloseLifecycle(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetOrders(backendtest.Order(1, 1, 10, models.StatusReceived))
	rec := &views{}
	s := newSession(t, view.KindKitchen, srv, rec)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrStarted)

	require.Eventually(t, func() bool {
		return len(rec.of(view.KindKitchen)) == 1 && len(rec.of(view.KindAdditions)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv.SetOrders(backendtest.Order(1, 1, 10, models.StatusPreparing))
	s.Refresh()
	require.Eventually(t, func() bool { return len(rec.of(view.KindKitchen)) == 2 }, 2*time.Second, 10*time.Millisecond)

	s.Close()
	assert.Equal(t, view.PlaceholderAdditions, rec.of(view.KindAdditions)[0].Placeholder)
}

func TestMutationRepollsImmediately(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.SetOrders(backendtest.Order(5, 1, 10, models.StatusReceived))
	var polls atomic.Int32
	rec := &views{}
	s := newSession(t, view.KindOperations, srv, rec)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	require.Eventually(t, func() bool {
		_, ok := s.FindOrder(5)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	polls.Store(int32(srv.Calls("GET /api/orders")))

	_, err := s.Advance(ctx, 5)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		o, ok := s.FindOrder(5)
		return ok && o.Status == models.StatusPreparing
	}, 2*time.Second, 10*time.Millisecond)
	assert.Greater(t, int32(srv.Calls("GET /api/orders")), polls.Load())
}
