// Package connection wraps a byte-stream transport in a duplex MQTT packet
// connection. Inbound bytes are parsed and dispatched to typed handlers on a
// single read goroutine; outbound packets are encoded by the caller and
// written in order by a single write goroutine.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

const tracerName = "github.com/bromq-dev/mqttwire/pkg/connection"

// Transport is the byte stream a connection runs over: a TCP or TLS socket,
// a WebSocket adapter, a tunnel stream or an in-memory pipe.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// HandlerFunc handles one inbound packet. ctx carries the dispatch span.
type HandlerFunc func(ctx context.Context, p packet.Packet)

var connSeq atomic.Uint64

// Conn is a duplex MQTT packet connection.
//
// Handlers, error handlers and close handlers run on the goroutine that
// called Serve. Without Serve no inbound events are delivered, but packets
// can still be sent.
type Conn struct {
	id     string
	t      Transport
	cfg    Config
	log    *slog.Logger
	tracer trace.Tracer
	hooks  hookSet

	// Protocol state
	mu      sync.Mutex // guards parser and version
	parser  *packet.Parser
	version packet.Version

	// Event handlers
	hmu      sync.RWMutex
	handlers [16][]HandlerFunc
	onError  []func(error)
	onClose  []func(error)

	// Outbound queue. Enqueuers hold sendMu for reading so shutdown can
	// close the queue once none are left.
	sendMu sync.RWMutex
	queue  chan *writeRequest

	// State
	serving atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	causeMu sync.Mutex
	cause   error
}

// writeRequest is an encoded packet waiting for the write loop.
type writeRequest struct {
	ctx     context.Context
	pkt     packet.Packet
	version packet.Version
	buf     *[]byte
	done    func(error)
}

// New creates a connection over t and starts its write loop. A nil cfg
// selects DefaultConfig.
func New(t Transport, cfg *Config) *Conn {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Conn{t: t, cfg: *cfg}
	if c.cfg.ID == "" {
		c.cfg.ID = fmt.Sprintf("conn-%d", connSeq.Add(1))
	}
	if !c.cfg.Version.Valid() {
		c.cfg.Version = packet.Version311
	}
	if c.cfg.ReadBufferSize <= 0 {
		c.cfg.ReadBufferSize = 8192
	}
	if c.cfg.WriteQueueSize <= 0 {
		c.cfg.WriteQueueSize = 256
	}
	if c.cfg.Logger == nil {
		c.cfg.Logger = slog.Default()
	}
	if c.cfg.Tracer == nil {
		c.cfg.Tracer = otel.Tracer(tracerName)
	}

	c.id = c.cfg.ID
	c.log = c.cfg.Logger.With("conn_id", c.id)
	c.tracer = c.cfg.Tracer
	c.hooks = newHookSet(c.cfg.Hooks)
	c.parser = packet.NewParser(&packet.ParserConfig{
		Version:       c.cfg.Version,
		MaxPacketSize: c.cfg.MaxPacketSize,
		InternStrings: c.cfg.InternStrings,
	})
	c.version = c.cfg.Version
	c.queue = make(chan *writeRequest, c.cfg.WriteQueueSize)
	c.done = make(chan struct{})

	go c.writeLoop()
	return c
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// Transport returns the underlying transport.
func (c *Conn) Transport() Transport { return c.t }

// Done is closed when the connection is destroyed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed reports whether the connection has been destroyed.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Version returns the protocol version used to encode outbound packets.
func (c *Conn) Version() packet.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// SetVersion switches both decoding and encoding to v. Invalid versions
// are ignored.
func (c *Conn) SetVersion(v packet.Version) {
	if !v.Valid() {
		return
	}
	c.mu.Lock()
	c.version = v
	c.parser.SetVersion(v)
	c.mu.Unlock()
}

// Serve reads from the transport and dispatches packets until the peer
// closes the stream, a decode or transport error occurs, Destroy is called
// or ctx is cancelled. It returns the close cause, which is nil for a clean
// end of stream or a Destroy.
func (c *Conn) Serve(ctx context.Context) error {
	if !c.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	stop := context.AfterFunc(ctx, c.Destroy)
	defer stop()

	for _, h := range c.hooks.lifecycle {
		h.OnOpen(ctx, c)
	}

	err := c.readLoop(ctx)
	if err != nil {
		c.log.Warn("connection error", "error", err)
		c.emitError(ctx, err)
	}
	c.shutdown(err)

	c.hmu.RLock()
	closers := c.onClose
	c.hmu.RUnlock()
	for _, fn := range closers {
		fn(err)
	}
	for _, h := range c.hooks.lifecycle {
		h.OnClose(ctx, c, err)
	}
	c.log.Debug("connection closed", "error", err)
	return err
}

// Destroy closes the transport, discards buffered input and fails queued
// and future sends with ErrClosed. No packet events are delivered after it
// returns. It is idempotent and safe to call from handlers.
func (c *Conn) Destroy() {
	c.shutdown(nil)
}

func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		n, rerr := c.t.Read(buf)
		if c.closed.Load() {
			return c.closeCause()
		}
		if n > 0 {
			if err := c.consume(ctx, buf[:n]); err != nil {
				return err
			}
			if c.closed.Load() {
				return c.closeCause()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				c.mu.Lock()
				partial := c.parser.Buffered()
				c.mu.Unlock()
				if partial > 0 {
					return &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
				}
				return nil
			}
			return &TransportError{Op: "read", Err: rerr}
		}
	}
}

// consume feeds a chunk to the parser and dispatches every complete packet
// in it, stopping as soon as the connection is destroyed.
func (c *Conn) consume(ctx context.Context, chunk []byte) error {
	c.mu.Lock()
	_, err := c.parser.Feed(chunk)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	for !c.closed.Load() {
		c.mu.Lock()
		pkt, err := c.parser.Next()
		var (
			frame []byte
			v     packet.Version
		)
		if pkt != nil {
			frame = c.parser.Frame()
			v = c.parser.Version()
			if _, ok := pkt.(*packet.Connect); ok {
				c.version = v
			}
		}
		c.mu.Unlock()

		if err != nil {
			return err
		}
		if pkt == nil {
			return nil
		}
		c.dispatch(ctx, pkt, v, frame)
	}
	return nil
}

func (c *Conn) dispatch(ctx context.Context, p packet.Packet, v packet.Version, frame []byte) {
	t := p.Type()
	ctx, span := c.tracer.Start(ctx, "mqtt.receive "+t.String(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(c.spanAttributes(p, len(frame))...),
	)
	defer span.End()

	c.log.Debug("packet received", "type", t, "length", p.RemainingLength())

	for _, h := range c.hooks.frames {
		h.OnFrame(ctx, c, Inbound, v, frame)
	}
	for _, h := range c.hooks.packets {
		h.OnPacketReceived(ctx, c, p)
	}

	c.hmu.RLock()
	handlers := c.handlers[t]
	c.hmu.RUnlock()
	for _, fn := range handlers {
		if c.closed.Load() {
			return
		}
		fn(ctx, p)
	}
}

func (c *Conn) emitError(ctx context.Context, err error) {
	c.hmu.RLock()
	fns := c.onError
	c.hmu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
	for _, h := range c.hooks.errors {
		h.OnError(ctx, c, err)
	}
}

// Send encodes p and waits until the transport accepted it. Encoding errors
// are returned as *packet.EncodeError and leave the connection usable.
// If ctx ends after the packet was queued it is still written.
func (c *Conn) Send(ctx context.Context, p packet.Packet) error {
	ctx, span := c.tracer.Start(ctx, "mqtt.send "+typeName(p),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("mqtt.connection.id", c.id)),
	)
	defer span.End()

	result := make(chan error, 1)
	req, err := c.prepare(ctx, p, func(err error) { result <- err })
	if err == nil {
		span.SetAttributes(c.spanAttributes(p, len(*req.buf))...)
		if err = c.enqueue(ctx, req); err == nil {
			select {
			case err = <-result:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// SendAsync encodes p and queues it without waiting for the write. done,
// if non-nil, receives the outcome: immediately for encoding errors and
// closed connections, otherwise from the write goroutine once the transport
// accepted or rejected the frame. done must not block on further sends.
//
// SendAsync waits for room when the write queue is full.
func (c *Conn) SendAsync(p packet.Packet, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	ctx := context.Background()
	req, err := c.prepare(ctx, p, done)
	if err == nil {
		err = c.enqueue(ctx, req)
	}
	if err != nil {
		done(err)
	}
}

// prepare encodes p under the current version. A CONNECT switches the
// connection to the version it announces.
func (c *Conn) prepare(ctx context.Context, p packet.Packet, done func(error)) (*writeRequest, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	buf := packet.GetBuffer()
	c.mu.Lock()
	frame, err := packet.Append((*buf)[:0], p, c.version)
	if err == nil {
		if cp, ok := p.(*packet.Connect); ok && cp.ProtocolVersion.Valid() {
			c.version = cp.ProtocolVersion
			c.parser.SetVersion(cp.ProtocolVersion)
		}
	}
	v := c.version
	c.mu.Unlock()

	if err != nil {
		packet.PutBuffer(buf)
		c.log.Debug("encode failed", "error", err)
		return nil, err
	}
	*buf = frame
	return &writeRequest{
		ctx:     context.WithoutCancel(ctx),
		pkt:     p,
		version: v,
		buf:     buf,
		done:    done,
	}, nil
}

func (c *Conn) enqueue(ctx context.Context, req *writeRequest) error {
	err := c.push(ctx, req)
	if err != nil {
		packet.PutBuffer(req.buf)
	}
	return err
}

func (c *Conn) push(ctx context.Context, req *writeRequest) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.queue <- req:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop writes queued frames in order until the queue is closed by
// shutdown. Requests still queued at that point fail with ErrClosed.
func (c *Conn) writeLoop() {
	for req := range c.queue {
		c.write(req)
	}
}

func (c *Conn) write(req *writeRequest) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in write loop", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("write loop panic: %v", r)
			c.shutdown(err)
		}
		packet.PutBuffer(req.buf)
		req.done(err)
	}()

	if c.closed.Load() {
		err = ErrClosed
		return
	}

	frame := *req.buf
	n, werr := c.t.Write(frame)
	if werr == nil && n < len(frame) {
		werr = io.ErrShortWrite
	}
	if werr != nil {
		if c.closed.Load() {
			err = ErrClosed
			return
		}
		err = &TransportError{Op: "write", Err: werr}
		c.log.Warn("write failed", "type", req.pkt.Type(), "error", werr)
		c.shutdown(err)
		return
	}

	c.log.Debug("packet sent", "type", req.pkt.Type(), "size", n)
	for _, h := range c.hooks.frames {
		h.OnFrame(req.ctx, c, Outbound, req.version, frame)
	}
	for _, h := range c.hooks.packets {
		h.OnPacketSent(req.ctx, c, req.pkt, n)
	}
}

// shutdown closes the connection once, recording cause for Serve.
func (c *Conn) shutdown(cause error) {
	c.causeMu.Lock()
	if c.closed.Load() {
		c.causeMu.Unlock()
		return
	}
	c.cause = cause
	c.closed.Store(true)
	c.causeMu.Unlock()

	close(c.done)
	if err := c.t.Close(); err != nil {
		c.log.Debug("transport close failed", "error", err)
	}

	c.mu.Lock()
	c.parser.Reset()
	c.mu.Unlock()

	// Wait out in-flight enqueuers; they observe done and back off.
	c.sendMu.Lock()
	close(c.queue)
	c.sendMu.Unlock()
}

func (c *Conn) closeCause() error {
	c.causeMu.Lock()
	defer c.causeMu.Unlock()
	return c.cause
}

func (c *Conn) spanAttributes(p packet.Packet, size int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("mqtt.connection.id", c.id),
		attribute.String("mqtt.packet.type", p.Type().String()),
		attribute.Int("mqtt.packet.size", size),
	}
	if id := packet.PacketID(p); id != 0 {
		attrs = append(attrs, attribute.Int("mqtt.packet.id", int(id)))
	}
	if pub, ok := p.(*packet.Publish); ok {
		attrs = append(attrs,
			attribute.String("mqtt.topic", pub.Topic),
			attribute.Int("mqtt.qos", int(pub.QoS)),
		)
	}
	return attrs
}

func typeName(p packet.Packet) string {
	if p == nil {
		return "nil"
	}
	return p.Type().String()
}
