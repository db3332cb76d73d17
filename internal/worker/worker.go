// Package worker consumes extraction run tasks from the Redis stream and
// executes them through the pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/yabrams/precon-demo-sub001/common/logger"
	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/pipeline"
	"github.com/yabrams/precon-demo-sub001/internal/queue"
	"github.com/yabrams/precon-demo-sub001/internal/store"
)

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer *queue.RedisConsumer
	sessions store.ExtractionStore
	pipeline *pipeline.Pipeline
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, sessions store.ExtractionStore, pipe *pipeline.Pipeline, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:  consumer,
		sessions:  sessions,
		pipeline:  pipe,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"session_id", msg.SessionID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"session_id", msg.SessionID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one extraction. Exported so it can be reused by the
// reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.run_extraction",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(msg.SessionID),
		ProjectID: logger.Ptr(msg.ProjectID),
		MessageID: logger.Ptr(msg.ID),
		Component: "extraction.worker",
	})

	slog.InfoContext(ctx, "processing extraction run", "attempt", msg.Attempt)

	sess, err := w.sessions.GetByID(ctx, msg.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Nothing to run and nothing to retry. Ack and move on.
			slog.WarnContext(ctx, "session not found, dropping task")
			return w.consumer.Ack(ctx, msg)
		}
		return fmt.Errorf("loading session: %w", err)
	}

	if sess.Status.Terminal() {
		slog.InfoContext(ctx, "session already terminal, skipping",
			"status", sess.Status)
		return w.consumer.Ack(ctx, msg)
	}

	start := time.Now()
	_, runErr := w.pipeline.Run(ctx, sess, nil)
	if runErr != nil {
		sc.RecordError(runErr)
		var extractionErr *model.ExtractionError
		if errors.As(runErr, &extractionErr) {
			// The pipeline already persisted the failed session; rerunning
			// would repeat the same failure, so the task is done.
			slog.WarnContext(ctx, "extraction run failed",
				"code", extractionErr.Code,
				"pass", extractionErr.PassNumber,
				"error", extractionErr)
			return w.consumer.Ack(ctx, msg)
		}
		return fmt.Errorf("running extraction: %w", runErr)
	}

	slog.InfoContext(ctx, "extraction run complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"packages", len(sess.WorkPackages),
		"items", sess.ItemCount())

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Log but don't fail - message will be reclaimed but runs on
		// terminal sessions are skipped.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"session_id", msg.SessionID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"session_id", msg.SessionID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
