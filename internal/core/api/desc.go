package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Router API wire contract.
 *
 * Messages are google.protobuf.Struct so the service needs no generated
 * code; the field layout of each request and response is documented on the
 * corresponding RouterService method.
 *
 *   service streamrouter.v1.Router {
 *     rpc Evaluate(Struct) returns (Struct);
 *     rpc Check(Struct) returns (Struct);
 *     rpc Dispatch(Struct) returns (Struct);
 *     rpc ListRoutes(Struct) returns (Struct);
 *   }
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "streamrouter.v1.Router"

// RouterServer is the server side of the router API.
type RouterServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Dispatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRoutes(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(RouterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RouterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RouterServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the router service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RouterServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler("Evaluate", RouterServer.Evaluate),
		methodHandler("Check", RouterServer.Check),
		methodHandler("Dispatch", RouterServer.Dispatch),
		methodHandler("ListRoutes", RouterServer.ListRoutes),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "streamrouter/v1/router.proto",
}

// RegisterRouterServer registers srv with s.
func RegisterRouterServer(s grpc.ServiceRegistrar, srv RouterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// RouterClient calls the router API.
type RouterClient struct {
	cc grpc.ClientConnInterface
}

// NewRouterClient wraps a client connection.
func NewRouterClient(cc grpc.ClientConnInterface) *RouterClient {
	return &RouterClient{cc: cc}
}

func (c *RouterClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Evaluate calls Router/Evaluate.
func (c *RouterClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Evaluate", in, opts...)
}

// Check calls Router/Check.
func (c *RouterClient) Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Check", in, opts...)
}

// Dispatch calls Router/Dispatch.
func (c *RouterClient) Dispatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Dispatch", in, opts...)
}

// ListRoutes calls Router/ListRoutes.
func (c *RouterClient) ListRoutes(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListRoutes", in, opts...)
}
