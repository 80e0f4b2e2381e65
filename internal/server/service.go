package server

// ============================================================================
// Inspector gRPC 服務描述
// ============================================================================
//
// 服務: drfsim.v1.Inspector
//
//   rpc Snapshot(google.protobuf.Empty)  returns (google.protobuf.Struct)
//   rpc Scenario(google.protobuf.Empty)  returns (google.protobuf.Struct)
//   rpc Tick(google.protobuf.Struct)     returns (google.protobuf.Struct)
//
// 訊息全部使用 well-known types，報告與情境以 JSON 物件形式放在 Struct 裡，
// 不需要額外產生 .pb.go。
// ============================================================================

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 完整的 gRPC 服務名稱
const ServiceName = "drfsim.v1.Inspector"

const (
	snapshotMethod = "/" + ServiceName + "/Snapshot"
	scenarioMethod = "/" + ServiceName + "/Scenario"
	tickMethod     = "/" + ServiceName + "/Tick"
)

// InspectorServer Inspector 服務端介面
type InspectorServer interface {
	// Snapshot 回傳目前狀態的報告
	Snapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Scenario 回傳正在執行的情境
	Scenario(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Tick 推進 {"ticks": n} 個 tick，回傳 {"now": t}
	Tick(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc Inspector 服務描述，供 grpc.ServiceRegistrar 註冊
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: snapshotHandler},
		{MethodName: "Scenario", Handler: scenarioHandler},
		{MethodName: "Tick", Handler: tickHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "drfsim/v1/inspector.proto",
}

// RegisterInspectorServer 註冊服務實作
func RegisterInspectorServer(r grpc.ServiceRegistrar, srv InspectorServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func scenarioHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).Scenario(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: scenarioMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).Scenario(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func tickHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).Tick(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: tickMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).Tick(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
