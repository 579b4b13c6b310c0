package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// LogSink writes events through slog.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

func (s *LogSink) Emit(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	if ev.Type == TypeCallDenied {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "event",
		"id", ev.ID,
		"type", string(ev.Type),
		"payload", ev.Payload,
	)
	return nil
}

// streamAdder is the part of redis.Cmdable the stream sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends events to a Redis stream. The order-book relayer
// consumes order.signed entries from it.
type RedisStream struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisStream creates a sink for the given stream. maxLen <= 0 keeps the
// stream untrimmed.
func NewRedisStream(client streamAdder, stream string, maxLen int64) *RedisStream {
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

// DialRedisStream connects to addr and returns a stream sink.
func DialRedisStream(addr, password string, db int, stream string, maxLen int64) (*RedisStream, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStream(rdb, stream, maxLen), rdb
}

func (s *RedisStream) Emit(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":        ev.ID,
			"type":      string(ev.Type),
			"timestamp": ev.Timestamp.UnixMilli(),
			"payload":   string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}
