// Package api defines the everstore.v1.Store gRPC service. Messages are
// protobuf well-known types, so no generated code is needed:
//
//	Read(google.protobuf.StringValue key) returns (google.protobuf.StringValue value)
//	Write(google.protobuf.Struct {key, value}) returns (google.protobuf.Empty)
//
// Read fails with codes.NotFound when the key is absent.
package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "everstore.v1.Store"

	ReadMethod  = "/everstore.v1.Store/Read"
	WriteMethod = "/everstore.v1.Store/Write"
)

// StoreServer is the server API for the Store service.
type StoreServer interface {
	Read(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Write(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// StoreClient is the client API for the Store service.
type StoreClient interface {
	Read(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Write(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type storeClient struct {
	cc grpc.ClientConnInterface
}

// NewStoreClient creates a client over cc.
func NewStoreClient(cc grpc.ClientConnInterface) StoreClient {
	return &storeClient{cc}
}

func (c *storeClient) Read(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, ReadMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storeClient) Write(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, WriteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterStoreServer registers srv on s.
func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&StoreServiceDesc, srv)
}

func readHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReadMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StoreServer).Read(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func writeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WriteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StoreServer).Write(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// StoreServiceDesc is the grpc.ServiceDesc for the Store service.
var StoreServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Read", Handler: readHandler},
		{MethodName: "Write", Handler: writeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "everstore/v1/store.proto",
}

// NewWriteRequest builds the Write message for key and value.
func NewWriteRequest(key, value string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":   structpb.NewStringValue(key),
		"value": structpb.NewStringValue(value),
	}}
}

// ParseWriteRequest extracts key and value from a Write message.
func ParseWriteRequest(req *structpb.Struct) (key, value string, err error) {
	if req == nil {
		return "", "", fmt.Errorf("empty request")
	}
	k, ok := req.GetFields()["key"]
	if !ok {
		return "", "", fmt.Errorf("missing key")
	}
	v, ok := req.GetFields()["value"]
	if !ok {
		return "", "", fmt.Errorf("missing value")
	}
	if _, isString := k.GetKind().(*structpb.Value_StringValue); !isString {
		return "", "", fmt.Errorf("key must be a string")
	}
	if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
		return "", "", fmt.Errorf("value must be a string")
	}
	return k.GetStringValue(), v.GetStringValue(), nil
}
