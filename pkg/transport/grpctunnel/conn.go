// Package grpctunnel carries MQTT byte streams over a bidirectional gRPC
// stream, for environments where only gRPC traffic is routed.
package grpctunnel

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// chunkStream is the part of the generated stream types Conn needs.
type chunkStream interface {
	Send(*Chunk) error
	Recv() (*Chunk, error)
}

// Conn is one end of a tunnel. It implements connection.Transport.
type Conn struct {
	stream chunkStream

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	closeFn   func()
	done      chan struct{}
}

func newConn(stream chunkStream, closeFn func()) *Conn {
	return &Conn{
		stream:  stream,
		closeFn: closeFn,
		done:    make(chan struct{}),
	}
}

// Dial opens a tunnel stream on cc.
func Dial(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (*Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := NewTunnelClient(cc).Stream(ctx, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	return newConn(stream, func() {
		_ = stream.CloseSend()
		cancel()
	}), nil
}

func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		chunk, err := c.stream.Recv()
		if err != nil {
			return 0, streamError(err)
		}
		c.pending = chunk.Data
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write sends p as one chunk.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return 0, io.ErrClosedPipe
	default:
	}
	// The message may be retained by stats handlers after Send returns.
	data := append([]byte(nil), p...)
	if err := c.stream.Send(&Chunk{Data: data}); err != nil {
		return 0, streamError(err)
	}
	return len(p), nil
}

// Close ends the stream. On the client side the call is cancelled; on the
// server side the stream handler returns.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closeFn != nil {
			c.closeFn()
		}
	})
	return nil
}

// Done is closed by Close.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// streamError maps the end of a stream to io.EOF.
func streamError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.Canceled {
		return io.ErrClosedPipe
	}
	return err
}

// Server implements TunnelServer by handing each stream to a callback as a
// Conn. The stream stays open until the Conn is closed or the client goes
// away.
type Server struct {
	handle func(*Conn)
}

// NewServer creates a tunnel server. handle must not block.
func NewServer(handle func(*Conn)) *Server {
	return &Server{handle: handle}
}

func (s *Server) Stream(stream Tunnel_StreamServer) error {
	c := newConn(stream, nil)
	s.handle(c)

	select {
	case <-c.done:
	case <-stream.Context().Done():
		c.Close()
	}
	return nil
}

// Register registers s on a gRPC server.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	RegisterTunnelServer(gs, s)
}
