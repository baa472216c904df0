// Package capture records raw MQTT frames seen by a connection and replays
// them through the parser.
//
// Records are msgpack-encoded. A FileSink appends them to a stream that a
// Reader can play back; a RedisSink appends them to a Redis stream.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Record is one captured frame.
type Record struct {
	Time      time.Time            `msgpack:"t"`
	ConnID    string               `msgpack:"c"`
	Direction connection.Direction `msgpack:"d"`
	Version   packet.Version       `msgpack:"v"`
	Type      packet.Type          `msgpack:"y"`
	Frame     []byte               `msgpack:"f"`
}

// Decode parses the captured frame under the recorded version.
func (r *Record) Decode() (packet.Packet, error) {
	pkts, err := packet.ParseAll(r.Frame, r.Version)
	if err != nil {
		return nil, err
	}
	if len(pkts) != 1 {
		return nil, fmt.Errorf("capture: record holds %d packets, want 1", len(pkts))
	}
	return pkts[0], nil
}

// Sink stores records.
type Sink interface {
	Write(ctx context.Context, rec *Record) error
	Close() error
}

// MultiSink writes every record to each of sinks, continuing past failures.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Write(ctx context.Context, rec *Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileSink writes a msgpack record stream.
type FileSink struct {
	mu  sync.Mutex
	w   io.Writer
	buf *bufio.Writer
	enc *msgpack.Encoder
}

// NewFileSink writes records to w. Close flushes and, if w is an
// io.Closer, closes it.
func NewFileSink(w io.Writer) *FileSink {
	buf := bufio.NewWriter(w)
	return &FileSink{w: w, buf: buf, enc: msgpack.NewEncoder(buf)}
}

// CreateFile creates or truncates path and returns a sink writing to it.
func CreateFile(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return NewFileSink(f), nil
}

func (s *FileSink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// Flush writes buffered records to the underlying writer.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Flush()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.buf.Flush()
	if c, ok := s.w.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// Reader reads a record stream written by a FileSink.
type Reader struct {
	dec *msgpack.Decoder
	c   io.Closer
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
	if c, ok := r.(io.Closer); ok {
		rd.c = c
	}
	return rd
}

// OpenFile opens a capture file for reading.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return NewReader(f), nil
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &rec, nil
}

// Close closes the underlying reader if it is an io.Closer.
func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}

// Replay decodes every record from r and calls fn with it. It stops at the
// end of the stream, at the first error returned by fn, or at the first
// record that fails to decode.
func Replay(r *Reader, fn func(rec *Record, p packet.Packet) error) error {
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		p, err := rec.Decode()
		if err != nil {
			return fmt.Errorf("capture: %s record of %s at %s: %w",
				rec.Direction, rec.ConnID, rec.Time.Format(time.RFC3339Nano), err)
		}
		if err := fn(rec, p); err != nil {
			return err
		}
	}
}
