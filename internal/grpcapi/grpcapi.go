// Package grpcapi serves rendered views and feed health over gRPC.
package grpcapi

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

const (
	ServiceName   = "possync.ViewService"
	getViewMethod = "/" + ServiceName + "/GetView"
)

type ViewServer interface {
	GetView(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ViewServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ViewServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetView", Handler: getViewHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "possync/view.proto",
}

func getViewHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ViewServer).GetView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getViewMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ViewServer).GetView(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Views interface {
	Get(kind view.Kind) (view.View, bool)
}

type Board interface {
	Healthy() bool
}

type Server struct {
	views  Views
	board  Board
	log    logrus.FieldLogger
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(views Views, board Board, log logrus.FieldLogger) *Server {
	s := &Server{
		views:  views,
		board:  board,
		log:    log.WithField("component", "grpc"),
		health: health.NewServer(),
	}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	s.grpc.RegisterService(&ViewServiceDesc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.updateHealth()
	return s
}

// GetView answers {"kind": "..."} with the last rendered view of that kind.
func (s *Server) GetView(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name := in.GetFields()["kind"].GetStringValue()
	kind, ok := view.ParseKind(name)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown view %q", name)
	}
	v, ok := s.views.Get(kind)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "view %s not rendered yet", kind)
	}
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode view: %v", err)
	}
	return out, nil
}

func toStruct(v view.View) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func (s *Server) updateHealth() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.board.Healthy() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchHealth mirrors the board's feed health until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealth()
		}
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start),
	}).Debug("grpc request")
	return resp, err
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Run listens on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go s.WatchHealth(ctx, time.Second)
	go func() {
		<-ctx.Done()
		s.grpc.GracefulStop()
	}()
	s.log.WithField("addr", addr).Info("grpc listening")
	return s.grpc.Serve(lis)
}

// Client calls ViewService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetView(ctx context.Context, kind view.Kind) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"kind": string(kind)})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getViewMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
