package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// recordField is the stream entry field holding the msgpack record.
const recordField = "r"

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Password for authentication.
	Password string

	// DB is the database number.
	DB int

	// Stream is the stream key (default: "mqttwire:capture").
	Stream string

	// MaxLen caps the stream length approximately (0 = unbounded).
	MaxLen int64

	// Client allows providing a pre-configured Redis client.
	Client redis.UniversalClient
}

// RedisSink appends records to a Redis stream with XADD.
type RedisSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	owned  bool
}

// NewRedisSink creates a sink. It does not contact the server; use Ping to
// check connectivity.
func NewRedisSink(cfg *RedisConfig) *RedisSink {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Stream == "" {
		cfg.Stream = "mqttwire:capture"
	}

	s := &RedisSink{client: cfg.Client, stream: cfg.Stream, maxLen: cfg.MaxLen}
	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		s.owned = true
	}
	return s
}

// Ping checks the connection to Redis.
func (s *RedisSink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

func (s *RedisSink) Write(ctx context.Context, rec *Record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{recordField: data},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// Range returns up to count records between the stream IDs start and stop
// ("-" and "+" for the whole stream). count <= 0 means no limit.
func (s *RedisSink) Range(ctx context.Context, start, stop string, count int64) ([]*Record, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, s.stream, start, stop, count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, s.stream, start, stop).Result()
	}
	if err != nil {
		return nil, err
	}

	recs := make([]*Record, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[recordField].(string)
		if !ok {
			return nil, fmt.Errorf("capture: stream entry %s has no record", msg.ID)
		}
		var rec Record
		if err := msgpack.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("capture: stream entry %s: %w", msg.ID, err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// Close closes the client if the sink created it.
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
