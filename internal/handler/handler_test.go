package handler

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/backend/backendtest"
	"gitlab.ozon.dev/qwestard/possync/internal/catalog"
	"gitlab.ozon.dev/qwestard/possync/internal/history"
	"gitlab.ozon.dev/qwestard/possync/internal/logger"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/render"
	"gitlab.ozon.dev/qwestard/possync/internal/session"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

type console struct {
	srv     *backendtest.Server
	out     *bytes.Buffer
	notices *notify.Channel
	run     func(input string) error
}

func newConsole(t *testing.T, kind view.Kind) *console {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	srv.SetOrders(backendtest.Order(1, 4, 100, models.StatusReceived))
	srv.SetMenu(
		models.MenuItem{ID: 7, Name: "Masala Tea", Category: "Drinks", Price: decimal.NewFromInt(3), Available: true},
		models.MenuItem{ID: 8, Name: "Naan", Category: "Breads", Price: decimal.NewFromInt(2), Available: true},
	)

	c := &console{srv: srv, out: &bytes.Buffer{}, notices: notify.NewChannel(16, 16)}
	client := backend.NewClient(srv.URL, time.Second)
	text := render.NewText(c.out)
	log := logger.Discard()

	var h *Handler
	sess, err := session.New(client, session.Config{
		Kind:      kind,
		Interval:  time.Hour,
		Renderer:  view.Multi{},
		Notifier:  c.notices,
		Confirmer: notify.Prompted{Fallback: notify.ConfirmFunc(func(ctx context.Context, p string) bool { return h.Confirm(ctx, p) })},
		Navigator: notify.NopNavigator{},
		Logger:    log,
	})
	require.NoError(t, err)
	require.NoError(t, sess.Sync(context.Background()))

	menu := catalog.New(client, text, c.notices, log)
	hist := history.New(client, text, c.notices, log)
	c.run = func(input string) error {
		h = New(sess, menu, hist, strings.NewReader(input), c.out)
		return h.Run(context.Background())
	}
	return c
}

func TestExecuteUnknownCommand(t *testing.T) {
	h := New(nil, nil, nil, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, h.Execute(context.Background(), "accept", nil), ErrUnknownCommand)
	assert.ErrorIs(t, h.Execute(context.Background(), "exit", nil), ErrExit)
}

func TestAdvanceAndView(t *testing.T) {
	c := newConsole(t, view.KindKitchen)

	require.NoError(t, c.run("advance 1\nview\nexit\n"))

	assert.Contains(t, c.out.String(), "Order #1 is Preparing")
	assert.Contains(t, c.out.String(), "== kitchen ==")
	got, ok := c.srv.Order(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusPreparing, got.Status)
}

func TestCloseAsksFirst(t *testing.T) {
	c := newConsole(t, view.KindOperations)

	require.NoError(t, c.run("close 1\nn\n"))
	assert.Contains(t, c.out.String(), "[y/N]")
	assert.Contains(t, c.out.String(), "Cancelled")
	assert.Zero(t, c.srv.Calls("POST /api/order/1/generate-close"))

	require.NoError(t, c.run("close 1\ny\n"))
	assert.Equal(t, 1, c.srv.Calls("POST /api/order/1/generate-close"))
}

func TestLocalValidation(t *testing.T) {
	c := newConsole(t, view.KindOperations)

	require.NoError(t, c.run("status 1 eaten\nadd 1 7 0\nadvance x\nadvance 99\nbogus\n"))

	out := c.out.String()
	assert.Contains(t, out, `Unknown status "eaten"`)
	assert.Contains(t, out, `Bad id "x"`)
	assert.Contains(t, out, "No such order on the board")
	assert.Contains(t, out, ErrUnknownCommand.Error())
	assert.Zero(t, c.srv.Calls("POST /api/order/1/add-item"))

	recent := c.notices.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "Quantity must be at least 1", recent[len(recent)-1].Message)
}

func TestMenuAndHistory(t *testing.T) {
	c := newConsole(t, view.KindOperations)

	require.NoError(t, c.run("menu Drinks\nmenu categories\nhistory\n"))

	out := c.out.String()
	assert.Contains(t, out, "Masala Tea")
	assert.Contains(t, out, "Drinks, Breads")
	assert.Equal(t, 1, c.srv.Calls("GET /api/menu"))

	recent := c.notices.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "Please select a date", recent[len(recent)-1].Message)
}
