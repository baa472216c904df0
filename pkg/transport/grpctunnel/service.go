package grpctunnel

import (
	"context"

	"google.golang.org/grpc"
)

const streamMethod = "/mqttwire.Tunnel/Stream"

// TunnelClient is the client API for the Tunnel service.
type TunnelClient interface {
	Stream(ctx context.Context, opts ...grpc.CallOption) (Tunnel_StreamClient, error)
}

type tunnelClient struct {
	cc grpc.ClientConnInterface
}

// NewTunnelClient creates a new TunnelClient.
func NewTunnelClient(cc grpc.ClientConnInterface) TunnelClient {
	return &tunnelClient{cc}
}

func (c *tunnelClient) Stream(ctx context.Context, opts ...grpc.CallOption) (Tunnel_StreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &_Tunnel_serviceDesc.Streams[0], streamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &tunnelStreamClient{stream}, nil
}

// Tunnel_StreamClient is the client side of a tunnel stream.
type Tunnel_StreamClient interface {
	Send(*Chunk) error
	Recv() (*Chunk, error)
	grpc.ClientStream
}

type tunnelStreamClient struct {
	grpc.ClientStream
}

func (x *tunnelStreamClient) Send(m *Chunk) error {
	return x.ClientStream.SendMsg(m)
}

func (x *tunnelStreamClient) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// TunnelServer is the server API for the Tunnel service.
type TunnelServer interface {
	Stream(Tunnel_StreamServer) error
}

// Tunnel_StreamServer is the server side of a tunnel stream.
type Tunnel_StreamServer interface {
	Send(*Chunk) error
	Recv() (*Chunk, error)
	grpc.ServerStream
}

type tunnelStreamServer struct {
	grpc.ServerStream
}

func (x *tunnelStreamServer) Send(m *Chunk) error {
	return x.ServerStream.SendMsg(m)
}

func (x *tunnelStreamServer) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterTunnelServer registers the server.
func RegisterTunnelServer(s grpc.ServiceRegistrar, srv TunnelServer) {
	s.RegisterService(&_Tunnel_serviceDesc, srv)
}

var _Tunnel_serviceDesc = grpc.ServiceDesc{
	ServiceName: "mqttwire.Tunnel",
	HandlerType: (*TunnelServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       _Tunnel_Stream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "tunnel.proto",
}

func _Tunnel_Stream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(TunnelServer).Stream(&tunnelStreamServer{stream})
}

// Message types

// Chunk carries a slice of the MQTT byte stream. Chunk boundaries are
// arbitrary and need not match packet boundaries.
type Chunk struct {
	Data []byte `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *Chunk) Reset()         { *m = Chunk{} }
func (m *Chunk) String() string { return "" }
func (m *Chunk) ProtoMessage()  {}
