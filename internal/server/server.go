package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/drf-sim/internal/allocator"
	"github.com/ChuLiYu/drf-sim/internal/controller"
)

var log = slog.Default()

// MaxTicksPerCall 單次 Tick RPC 允許的最大 tick 數
const MaxTicksPerCall = 100000

// Server implements the Inspector gRPC service on top of a controller.
type Server struct {
	controller *controller.Controller
}

var _ InspectorServer = (*Server)(nil)

// NewServer creates a new gRPC server instance.
func NewServer(ctrl *controller.Controller) *Server {
	return &Server{controller: ctrl}
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	RegisterInspectorServer(r, s)
}

// Snapshot returns the current report.
func (s *Server) Snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.controller.Report())
}

// Scenario returns the scenario being simulated.
func (s *Server) Scenario(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.controller.Scenario())
}

// Tick advances the simulation by req["ticks"] ticks.
func (s *Server) Tick(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["ticks"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "missing field: ticks")
	}
	n := v.GetNumberValue()
	if n < 1 || n > MaxTicksPerCall || n != float64(int(n)) {
		return nil, status.Errorf(codes.InvalidArgument, "ticks must be an integer in [1, %d], got %v", MaxTicksPerCall, n)
	}

	if err := s.controller.Tick(ctx, int(n)); err != nil {
		log.Error("Tick RPC failed", "ticks", int(n), "error", err)
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"now": float64(s.controller.Now())})
}

// toStatus maps controller errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, controller.ErrClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, allocator.ErrConsistencyViolation):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "decode: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "struct: %v", err)
	}
	return st, nil
}

// fromStruct decodes a Struct into v through JSON.
func fromStruct(st *structpb.Struct, v any) error {
	data, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Serve runs a gRPC server on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, ctrl *controller.Controller, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	NewServer(ctrl).Register(gs)
	reflection.Register(gs)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Inspector listening", "addr", lis.Addr().String())
		errCh <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve inspector: %w", err)
		}
		return nil
	}
}
