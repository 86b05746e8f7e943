package grpcexecutor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the full name of the judge gRPC service
const ServiceName = "judge.Judge"

// JudgeServer is the server API for the judge.Judge service. Requests and
// results are the REST JSON bodies carried as google.protobuf.Struct.
type JudgeServer interface {
	RunTrial(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Terminate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterJudgeServer registers srv to s
func RegisterJudgeServer(s grpc.ServiceRegistrar, srv JudgeServer) {
	s.RegisterService(&judgeServiceDesc, srv)
}

type method func(JudgeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, m method) grpc.MethodHandler {
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/" + name}
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(JudgeServer), ctx, in)
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(JudgeServer), ctx, req.(*structpb.Struct))
		}
		i := *info
		i.Server = srv
		return interceptor(ctx, in, &i, handler)
	}
}

var judgeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*JudgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunTrial", Handler: unaryHandler("RunTrial", JudgeServer.RunTrial)},
		{MethodName: "Submit", Handler: unaryHandler("Submit", JudgeServer.Submit)},
		{MethodName: "Terminate", Handler: unaryHandler("Terminate", JudgeServer.Terminate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "judge.proto",
}
