// Package service holds the API-facing orchestration layer: creating
// extraction sessions, enqueueing runs, and read-side queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yabrams/precon-demo-sub001/common/id"
	"github.com/yabrams/precon-demo-sub001/core/config"
	"github.com/yabrams/precon-demo-sub001/internal/cost"
	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/queue"
	"github.com/yabrams/precon-demo-sub001/internal/store"
)

var ErrSessionNotFound = errors.New("extraction session not found")

type StartParams struct {
	ProjectID string
	Documents []model.ExtractionDocument
	Config    model.ExtractionConfig
	TraceID   *string
}

type StartResult struct {
	Session  *model.ExtractionSession
	Enqueued bool
}

type ExtractionService interface {
	Start(ctx context.Context, params StartParams) (*StartResult, error)
	Get(ctx context.Context, sessionID int64) (*model.ExtractionSession, error)
	ListByProject(ctx context.Context, projectID string, limit int) ([]model.ExtractionSession, error)
	Estimate(ctx context.Context, pageCount int, profile model.PipelineProfile) cost.Estimate
}

type extractionService struct {
	sessions store.ExtractionStore
	producer queue.Producer
	defaults config.ExtractionConfig
	logger   *slog.Logger
}

func NewExtractionService(sessions store.ExtractionStore, producer queue.Producer, defaults config.ExtractionConfig, logger *slog.Logger) ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &extractionService{
		sessions: sessions,
		producer: producer,
		defaults: defaults,
		logger:   logger,
	}
}

// Start creates a queued session and hands it to a worker. The session is
// persisted before enqueueing so a lost task can be re-enqueued without
// losing the request.
func (s *extractionService) Start(ctx context.Context, params StartParams) (*StartResult, error) {
	if params.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required")
	}
	if len(params.Documents) == 0 {
		return nil, fmt.Errorf("at least one document is required")
	}

	now := time.Now().UTC()
	sess := &model.ExtractionSession{
		ID:        id.New(),
		ProjectID: params.ProjectID,
		Config:    s.resolveConfig(params.Config),
		Documents: params.Documents,
		Status:    model.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	if err := s.producer.Enqueue(ctx, queue.RunMessage{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		TraceID:   params.TraceID,
	}); err != nil {
		return nil, fmt.Errorf("enqueueing extraction run: %w", err)
	}

	s.logger.InfoContext(ctx, "extraction session created",
		"session_id", sess.ID,
		"project_id", sess.ProjectID,
		"profile", sess.Config.Profile,
		"documents", len(sess.Documents))

	return &StartResult{Session: sess, Enqueued: true}, nil
}

func (s *extractionService) Get(ctx context.Context, sessionID int64) (*model.ExtractionSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	return sess, nil
}

func (s *extractionService) ListByProject(ctx context.Context, projectID string, limit int) ([]model.ExtractionSession, error) {
	return s.sessions.ListByProject(ctx, projectID, limit)
}

func (s *extractionService) Estimate(_ context.Context, pageCount int, profile model.PipelineProfile) cost.Estimate {
	if profile == "" {
		profile = model.PipelineProfile(s.defaults.Profile)
	}
	return cost.EstimateRun(pageCount, profile)
}

// resolveConfig layers per-request overrides over deployment defaults.
func (s *extractionService) resolveConfig(requested model.ExtractionConfig) model.ExtractionConfig {
	cfg := requested
	if cfg.Profile == "" {
		cfg.Profile = model.PipelineProfile(s.defaults.Profile)
	}
	if cfg.DedupThreshold == 0 {
		cfg.DedupThreshold = s.defaults.DedupThreshold
	}
	if cfg.MaxBatchTokens == 0 {
		cfg.MaxBatchTokens = s.defaults.MaxBatchTokens
	}
	if cfg.LargeDocumentPages == 0 {
		cfg.LargeDocumentPages = s.defaults.LargeDocumentPages
	}
	if cfg.PassTimeout == 0 {
		cfg.PassTimeout = s.defaults.PassTimeout
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = s.defaults.BatchConcurrency
	}
	return cfg.Normalized()
}
