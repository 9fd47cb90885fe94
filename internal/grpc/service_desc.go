package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "surveydash.v1.ReportService"

const (
	getReportMethod   = "/" + ServiceName + "/GetReport"
	getStatusMethod   = "/" + ServiceName + "/GetStatus"
	getLoadedAtMethod = "/" + ServiceName + "/GetLoadedAt"
	reloadMethod      = "/" + ServiceName + "/Reload"
)

// ReportServiceServer is the server API. Payloads use protobuf well-known
// types so no generated code is needed: reports travel as a Struct
// mirroring the JSON API.
type ReportServiceServer interface {
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetLoadedAt(context.Context, *emptypb.Empty) (*timestamppb.Timestamp, error)
	Reload(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterReportServiceServer registers srv with s.
func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportServiceDesc, srv)
}

// ReportServiceDesc describes the service for grpc.Server.
var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: unary(getReportMethod, ReportServiceServer.GetReport)},
		{MethodName: "GetStatus", Handler: unary(getStatusMethod, ReportServiceServer.GetStatus)},
		{MethodName: "GetLoadedAt", Handler: unary(getLoadedAtMethod, ReportServiceServer.GetLoadedAt)},
		{MethodName: "Reload", Handler: unary(reloadMethod, ReportServiceServer.Reload)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "surveydash/v1/report.proto",
}

// unary adapts a typed method to a grpc.MethodDesc handler.
func unary[Req, Resp any](fullMethod string, call func(ReportServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReportServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReportServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReportServiceClient calls a remote ReportService.
type ReportServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewReportServiceClient(cc grpc.ClientConnInterface) *ReportServiceClient {
	return &ReportServiceClient{cc: cc}
}

func (c *ReportServiceClient) GetReport(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getReportMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReportServiceClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReportServiceClient) GetLoadedAt(ctx context.Context, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	out := new(timestamppb.Timestamp)
	if err := c.cc.Invoke(ctx, getLoadedAtMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReportServiceClient) Reload(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, reloadMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
