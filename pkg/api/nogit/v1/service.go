package nogitv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "nogit.v1.Snapshots"

// Full method names.
const (
	MethodSnapshotNow         = "/" + ServiceName + "/SnapshotNow"
	MethodListSnapshots       = "/" + ServiceName + "/ListSnapshots"
	MethodResolveSnapshotPath = "/" + ServiceName + "/ResolveSnapshotPath"
	MethodPrune               = "/" + ServiceName + "/Prune"
	MethodRecordChanges       = "/" + ServiceName + "/RecordChanges"
	MethodGetStatus           = "/" + ServiceName + "/GetStatus"
	MethodShutdown            = "/" + ServiceName + "/Shutdown"
	MethodWatchEvents         = "/" + ServiceName + "/WatchEvents"
)

// SnapshotsServer is the server API for the Snapshots service.
type SnapshotsServer interface {
	SnapshotNow(context.Context, *SnapshotNowRequest) (*SnapshotNowResponse, error)
	ListSnapshots(context.Context, *ListSnapshotsRequest) (*ListSnapshotsResponse, error)
	ResolveSnapshotPath(context.Context, *ResolveSnapshotPathRequest) (*ResolveSnapshotPathResponse, error)
	Prune(context.Context, *PruneRequest) (*PruneResponse, error)
	RecordChanges(context.Context, *RecordChangesRequest) (*RecordChangesResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*Status, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
	WatchEvents(*WatchEventsRequest, Snapshots_WatchEventsServer) error
}

// Snapshots_WatchEventsServer is the server side of a WatchEvents stream.
//
//nolint:revive,stylecheck // matches generated naming
type Snapshots_WatchEventsServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type watchEventsServer struct {
	grpc.ServerStream
}

func (x *watchEventsServer) Send(ev *Event) error {
	return x.ServerStream.SendMsg(ev)
}

// UnimplementedSnapshotsServer can be embedded for forward compatibility.
type UnimplementedSnapshotsServer struct{}

func (UnimplementedSnapshotsServer) SnapshotNow(context.Context, *SnapshotNowRequest) (*SnapshotNowResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SnapshotNow not implemented")
}

func (UnimplementedSnapshotsServer) ListSnapshots(context.Context, *ListSnapshotsRequest) (*ListSnapshotsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListSnapshots not implemented")
}

func (UnimplementedSnapshotsServer) ResolveSnapshotPath(context.Context, *ResolveSnapshotPathRequest) (*ResolveSnapshotPathResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveSnapshotPath not implemented")
}

func (UnimplementedSnapshotsServer) Prune(context.Context, *PruneRequest) (*PruneResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Prune not implemented")
}

func (UnimplementedSnapshotsServer) RecordChanges(context.Context, *RecordChangesRequest) (*RecordChangesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RecordChanges not implemented")
}

func (UnimplementedSnapshotsServer) GetStatus(context.Context, *GetStatusRequest) (*Status, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedSnapshotsServer) Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}

func (UnimplementedSnapshotsServer) WatchEvents(*WatchEventsRequest, Snapshots_WatchEventsServer) error {
	return status.Error(codes.Unimplemented, "method WatchEvents not implemented")
}

// RegisterSnapshotsServer registers srv on s.
func RegisterSnapshotsServer(s grpc.ServiceRegistrar, srv SnapshotsServer) {
	s.RegisterService(&Snapshots_ServiceDesc, srv)
}

// unary builds a method handler for one request type.
func unary[Req any, Resp any](method string, call func(SnapshotsServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SnapshotsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SnapshotsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SnapshotsServer).WatchEvents(in, &watchEventsServer{stream})
}

// Snapshots_ServiceDesc is the grpc.ServiceDesc for the Snapshots service.
//
//nolint:revive,stylecheck // matches generated naming
var Snapshots_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SnapshotsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SnapshotNow", Handler: unary(MethodSnapshotNow, SnapshotsServer.SnapshotNow)},
		{MethodName: "ListSnapshots", Handler: unary(MethodListSnapshots, SnapshotsServer.ListSnapshots)},
		{MethodName: "ResolveSnapshotPath", Handler: unary(MethodResolveSnapshotPath, SnapshotsServer.ResolveSnapshotPath)},
		{MethodName: "Prune", Handler: unary(MethodPrune, SnapshotsServer.Prune)},
		{MethodName: "RecordChanges", Handler: unary(MethodRecordChanges, SnapshotsServer.RecordChanges)},
		{MethodName: "GetStatus", Handler: unary(MethodGetStatus, SnapshotsServer.GetStatus)},
		{MethodName: "Shutdown", Handler: unary(MethodShutdown, SnapshotsServer.Shutdown)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "nogit/v1/nogit.proto",
}

// SnapshotsClient is the client API for the Snapshots service.
type SnapshotsClient interface {
	SnapshotNow(ctx context.Context, in *SnapshotNowRequest, opts ...grpc.CallOption) (*SnapshotNowResponse, error)
	ListSnapshots(ctx context.Context, in *ListSnapshotsRequest, opts ...grpc.CallOption) (*ListSnapshotsResponse, error)
	ResolveSnapshotPath(ctx context.Context, in *ResolveSnapshotPathRequest, opts ...grpc.CallOption) (*ResolveSnapshotPathResponse, error)
	Prune(ctx context.Context, in *PruneRequest, opts ...grpc.CallOption) (*PruneResponse, error)
	RecordChanges(ctx context.Context, in *RecordChangesRequest, opts ...grpc.CallOption) (*RecordChangesResponse, error)
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*Status, error)
	Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error)
	WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (Snapshots_WatchEventsClient, error)
}

// Snapshots_WatchEventsClient is the client side of a WatchEvents stream.
//
//nolint:revive,stylecheck // matches generated naming
type Snapshots_WatchEventsClient interface {
	Recv() (*Event, error)
	grpc.ClientStream
}

type watchEventsClient struct {
	grpc.ClientStream
}

func (x *watchEventsClient) Recv() (*Event, error) {
	ev := new(Event)
	if err := x.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

type snapshotsClient struct {
	cc grpc.ClientConnInterface
}

// NewSnapshotsClient returns a client bound to cc.
func NewSnapshotsClient(cc grpc.ClientConnInterface) SnapshotsClient {
	return &snapshotsClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *snapshotsClient) SnapshotNow(ctx context.Context, in *SnapshotNowRequest, opts ...grpc.CallOption) (*SnapshotNowResponse, error) {
	return invoke[SnapshotNowResponse](ctx, c.cc, MethodSnapshotNow, in, opts)
}

func (c *snapshotsClient) ListSnapshots(ctx context.Context, in *ListSnapshotsRequest, opts ...grpc.CallOption) (*ListSnapshotsResponse, error) {
	return invoke[ListSnapshotsResponse](ctx, c.cc, MethodListSnapshots, in, opts)
}

func (c *snapshotsClient) ResolveSnapshotPath(ctx context.Context, in *ResolveSnapshotPathRequest, opts ...grpc.CallOption) (*ResolveSnapshotPathResponse, error) {
	return invoke[ResolveSnapshotPathResponse](ctx, c.cc, MethodResolveSnapshotPath, in, opts)
}

func (c *snapshotsClient) Prune(ctx context.Context, in *PruneRequest, opts ...grpc.CallOption) (*PruneResponse, error) {
	return invoke[PruneResponse](ctx, c.cc, MethodPrune, in, opts)
}

func (c *snapshotsClient) RecordChanges(ctx context.Context, in *RecordChangesRequest, opts ...grpc.CallOption) (*RecordChangesResponse, error) {
	return invoke[RecordChangesResponse](ctx, c.cc, MethodRecordChanges, in, opts)
}

func (c *snapshotsClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*Status, error) {
	return invoke[Status](ctx, c.cc, MethodGetStatus, in, opts)
}

func (c *snapshotsClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	return invoke[ShutdownResponse](ctx, c.cc, MethodShutdown, in, opts)
}

func (c *snapshotsClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (Snapshots_WatchEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &Snapshots_ServiceDesc.Streams[0], MethodWatchEvents, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &watchEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
