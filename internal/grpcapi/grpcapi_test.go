package grpcapi

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"gitlab.ozon.dev/qwestard/possync/internal/cache"
	"gitlab.ozon.dev/qwestard/possync/internal/logger"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

type board struct{ ok atomic.Bool }

func (b *board) Healthy() bool { return b.ok.Load() }

func dial(t *testing.T, views Views, b Board) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewServer(views, b, logger.Discard())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.grpc.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return s, conn
}

func TestGetView(t *testing.T) {
	views := cache.NewViewCache()
	b := &board{}
	b.ok.Store(true)
	_, conn := dial(t, views, b)
	client := NewClient(conn)
	ctx := context.Background()

	_, err := client.GetView(ctx, view.KindKitchen)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetView(ctx, view.Kind("billing"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	require.NoError(t, views.Render(view.Kitchen([]models.Order{
		{ID: 5, TableNo: 2, Status: models.StatusReady},
		{ID: 6, TableNo: 3, Status: models.StatusServed},
	})))
	got, err := client.GetView(ctx, view.KindKitchen)
	require.NoError(t, err)

	m := got.AsMap()
	assert.Equal(t, "kitchen", m["kind"])
	orders, ok := m["orders"].([]any)
	require.True(t, ok)
	require.Len(t, orders, 1)
	assert.Equal(t, float64(5), orders[0].(map[string]any)["id"])
	assert.Equal(t, float64(2), m["aggregates"].(map[string]any)["count"])
}

func TestHealthFollowsBoard(t *testing.T) {
	b := &board{}
	s, conn := dial(t, cache.NewViewCache(), b)
	hc := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	b.ok.Store(true)
	s.updateHealth()
	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
