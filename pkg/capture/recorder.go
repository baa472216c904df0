package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Recorder is a connection hook that writes every frame to a Sink.
// Writes happen on the goroutine that read or wrote the frame, so a slow
// sink slows the connection down.
type Recorder struct {
	sink Sink
	log  *slog.Logger
	now  func() time.Time
}

// NewRecorder returns a hook that records into sink. Sink errors are
// logged and otherwise ignored.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, log: logger, now: time.Now}
}

func (r *Recorder) ID() string { return "capture" }

func (r *Recorder) OnFrame(ctx context.Context, c *connection.Conn, dir connection.Direction, v packet.Version, frame []byte) {
	if len(frame) == 0 {
		return
	}
	rec := &Record{
		Time:      r.now().UTC(),
		ConnID:    c.ID(),
		Direction: dir,
		Version:   v,
		Type:      packet.Type(frame[0] >> 4),
		Frame:     append([]byte(nil), frame...),
	}
	if err := r.sink.Write(ctx, rec); err != nil {
		r.log.WarnContext(ctx, "capture write failed",
			"conn_id", c.ID(),
			"error", err,
		)
	}
}
