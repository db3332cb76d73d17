package store

import (
	"context"
	"errors"

	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ExtractionStore defines the contract for extraction session persistence.
// Sessions are stored as whole snapshots; the pipeline is the single writer
// and upserts after every step so a crash loses at most one step.
type ExtractionStore interface {
	Upsert(ctx context.Context, session *model.ExtractionSession) error
	GetByID(ctx context.Context, id int64) (*model.ExtractionSession, error)
	ListByProject(ctx context.Context, projectID string, limit int) ([]model.ExtractionSession, error)
}
