package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// memorySink collects records in memory.
type memorySink struct {
	mu   sync.Mutex
	recs []*Record
}

func (s *memorySink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.recs...)
}

func frame(t *testing.T, p packet.Packet, v packet.Version) []byte {
	t.Helper()
	b, err := packet.Encode(p, v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFileSinkRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewFileSink(&buf)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := []*Record{
		{Time: ts, ConnID: "a", Direction: connection.Inbound, Version: packet.Version5, Type: packet.TypeConnect,
			Frame: frame(t, &packet.Connect{ProtocolVersion: packet.Version5, ClientID: "x"}, packet.Version5)},
		{Time: ts.Add(time.Millisecond), ConnID: "a", Direction: connection.Outbound, Version: packet.Version5, Type: packet.TypeConnack,
			Frame: frame(t, &packet.Connack{}, packet.Version5)},
	}
	for _, rec := range want {
		if err := sink.Write(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	for i, w := range want {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next() #%d error: %v", i, err)
		}
		if !got.Time.Equal(w.Time) || got.ConnID != w.ConnID || got.Direction != w.Direction ||
			got.Version != w.Version || got.Type != w.Type || !bytes.Equal(got.Frame, w.Frame) {
			t.Errorf("record #%d = %+v, want %+v", i, got, w)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestReplay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.mqcap")
	sink, err := CreateFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sink.Write(context.Background(), &Record{Version: packet.Version311, Type: packet.TypePublish,
		Frame: frame(t, &packet.Publish{Topic: "a/b", QoS: packet.QoS1, PacketID: 7, Payload: []byte("hi")}, packet.Version311)})
	sink.Write(context.Background(), &Record{Version: packet.Version311, Type: packet.TypePingreq,
		Frame: frame(t, &packet.Pingreq{}, packet.Version311)})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var types []packet.Type
	err = Replay(r, func(rec *Record, p packet.Packet) error {
		if p.Type() != rec.Type {
			t.Errorf("decoded %s from a %s record", p.Type(), rec.Type)
		}
		types = append(types, p.Type())
		if pub, ok := p.(*packet.Publish); ok && (pub.Topic != "a/b" || pub.PacketID != 7) {
			t.Errorf("publish = %+v", pub)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}
	if len(types) != 2 || types[0] != packet.TypePublish || types[1] != packet.TypePingreq {
		t.Errorf("replayed %v", types)
	}
}

func TestReplayRejectsBadFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewFileSink(&buf)
	sink.Write(context.Background(), &Record{Version: packet.Version311, Frame: []byte{0x30, 0x05, 0x00}})
	sink.Flush()

	err := Replay(NewReader(&buf), func(*Record, packet.Packet) error { return nil })
	if err == nil {
		t.Fatal("Replay() accepted a truncated frame")
	}
	var decErr *packet.DecodeError
	if !errors.As(err, &decErr) {
		t.Errorf("Replay() error = %v, want a *packet.DecodeError", err)
	}
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewFileSink(&buf)
	for i := 0; i < 3; i++ {
		sink.Write(context.Background(), &Record{Version: packet.Version311, Frame: []byte{0xC0, 0x00}})
	}
	sink.Flush()

	stop := errors.New("stop")
	calls := 0
	err := Replay(NewReader(&buf), func(*Record, packet.Packet) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Replay() = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	rec := NewRecorder(sink, nil)
	rec.now = func() time.Time { return time.Unix(42, 0) }

	local, peer := net.Pipe()
	cfg := connection.DefaultConfig()
	cfg.ID = "recorded"
	cfg.Hooks = []connection.Hook{rec}
	c := connection.New(local, cfg)
	c.OnPingreq(func(ctx context.Context, _ *packet.Pingreq) {
		c.Pingresp(ctx)
	})
	errc := make(chan error, 1)
	go func() { errc <- c.Serve(context.Background()) }()

	peer.Write([]byte{0xC0, 0x00})
	if _, err := packet.NewReader(peer, nil).ReadPacket(); err != nil {
		t.Fatal(err)
	}
	peer.Close()
	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	recs := sink.records()
	if len(recs) != 2 {
		t.Fatalf("recorded %d frames, want 2", len(recs))
	}
	in, out := recs[0], recs[1]
	if in.Direction != connection.Inbound || in.Type != packet.TypePingreq || !bytes.Equal(in.Frame, []byte{0xC0, 0x00}) {
		t.Errorf("inbound record = %+v", in)
	}
	if out.Direction != connection.Outbound || out.Type != packet.TypePingresp || !bytes.Equal(out.Frame, []byte{0xD0, 0x00}) {
		t.Errorf("outbound record = %+v", out)
	}
	if in.ConnID != "recorded" || !in.Time.Equal(time.Unix(42, 0)) || in.Version != packet.Version311 {
		t.Errorf("record metadata = %+v", in)
	}
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("MQTTWIRE_REDIS_ADDR")
	if addr == "" {
		t.Skip("MQTTWIRE_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	stream := "mqttwire:test:" + t.Name() + ":" + time.Now().Format("150405.000000")
	defer client.Del(ctx, stream)

	sink := NewRedisSink(&RedisConfig{Client: client, Stream: stream, MaxLen: 100})
	if err := sink.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	want := &Record{
		Time:      time.Unix(1, 0).UTC(),
		ConnID:    "r",
		Direction: connection.Inbound,
		Version:   packet.Version311,
		Type:      packet.TypePingreq,
		Frame:     []byte{0xC0, 0x00},
	}
	if err := sink.Write(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := sink.Range(ctx, "-", "+", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ConnID != "r" || !bytes.Equal(got[0].Frame, want.Frame) {
		t.Errorf("Range() = %+v", got)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() on a borrowed client = %v", err)
	}
}

type failingSink struct{ err error }

func (s failingSink) Write(context.Context, *Record) error { return s.err }
func (s failingSink) Close() error                          { return s.err }

func TestMultiSink(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	mem := &memorySink{}
	sink := MultiSink(failingSink{boom}, mem)

	err := sink.Write(context.Background(), &Record{ConnID: "m"})
	if !errors.Is(err, boom) {
		t.Errorf("Write() = %v, want boom", err)
	}
	if recs := mem.records(); len(recs) != 1 || recs[0].ConnID != "m" {
		t.Errorf("second sink got %+v", recs)
	}
	if err := sink.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() = %v, want boom", err)
	}
}
