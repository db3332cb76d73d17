package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RunMessage asks a worker to execute one extraction session.
type RunMessage struct {
	SessionID int64
	ProjectID string
	TraceID   *string
	Attempt   int
}

type Producer interface {
	Enqueue(ctx context.Context, msg RunMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg RunMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"task_type":  string(TaskTypeExtractionRun),
		"session_id": msg.SessionID,
		"project_id": msg.ProjectID,
		"attempt":    attempt,
	}

	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue extraction run: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued extraction run", "session_id", msg.SessionID, "project_id", msg.ProjectID, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
