package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

var rollerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RollerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Roll", Handler: unaryHandler("Roll", RollerServer.Roll)},
		{MethodName: "BuildContext", Handler: unaryHandler("BuildContext", RollerServer.BuildContext)},
		{MethodName: "RollAction", Handler: unaryHandler("RollAction", RollerServer.RollAction)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sheetroll/v1/roller.proto",
}

type rollerMethod func(RollerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method rollerMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(RollerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(RollerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls the Roller service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Roller client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Roll calls Roller.Roll.
func (c *Client) Roll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Roll", in, opts...)
}

// BuildContext calls Roller.BuildContext.
func (c *Client) BuildContext(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "BuildContext", in, opts...)
}

// RollAction calls Roller.RollAction.
func (c *Client) RollAction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RollAction", in, opts...)
}
