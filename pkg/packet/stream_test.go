package packet

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestReaderReadsAcrossShortReads(t *testing.T) {
	t.Parallel()

	wire, want := stream(t, Version5)
	r := NewReader(iotest.OneByteReader(bytes.NewReader(wire)), nil)

	for i := range want {
		pkt, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.Type() != want[i].Type() {
			t.Fatalf("packet %d: got %s, want %s", i, pkt.Type(), want[i].Type())
		}
	}
	if _, err := r.ReadPacket(); err != io.EOF {
		t.Fatalf("final ReadPacket error = %v, want io.EOF", err)
	}
	if r.Version() != Version5 {
		t.Errorf("Version = %s, want 5.0", r.Version())
	}
}

func TestReaderUnexpectedEOF(t *testing.T) {
	t.Parallel()

	r := NewReader(bytes.NewReader([]byte{0xC0, 0x00, 0x30, 0x05, 0x00}), nil)
	if _, err := r.ReadPacket(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadPacket(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReaderDecodeError(t *testing.T) {
	t.Parallel()

	r := NewReader(iotest.DataErrReader(bytes.NewReader([]byte{0x00, 0x00})), nil)
	_, err := r.ReadPacket()
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
}

func TestWriterAdoptsConnectVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, Version311)

	if err := w.WritePacket(&Connect{ProtocolVersion: Version5, ClientID: "c"}); err != nil {
		t.Fatal(err)
	}
	if w.Version() != Version5 {
		t.Fatalf("Version = %s, want 5.0", w.Version())
	}
	if err := w.WritePacket(&Auth{ReasonCode: ReasonContinueAuth}); err != nil {
		t.Fatalf("AUTH after 5.0 CONNECT: %v", err)
	}

	pkts, err := ParseAll(buf.Bytes(), Version311)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 2 {
		t.Fatalf("decoded %d packets, want 2", len(pkts))
	}
}

func TestWriteToReportsEncodeError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := WriteTo(&buf, &Publish{Topic: "a", QoS: QoS1}, Version311)
	var encErr *EncodeError
	if !errors.As(err, &encErr) || n != 0 || buf.Len() != 0 {
		t.Fatalf("WriteTo = %d, %v; wrote %d bytes", n, err, buf.Len())
	}
}
