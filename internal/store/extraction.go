package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yabrams/precon-demo-sub001/core/db"
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// PgExtractionStore persists extraction sessions as JSONB snapshots with a
// few promoted columns for querying. The full aggregate round-trips through
// the snapshot, so schema churn in the session shape needs no migration.
type PgExtractionStore struct {
	db *db.DB
}

func NewPgExtractionStore(database *db.DB) *PgExtractionStore {
	return &PgExtractionStore{db: database}
}

const upsertSessionSQL = `
INSERT INTO extraction_sessions (id, project_id, status, progress, snapshot, created_at, updated_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    status       = EXCLUDED.status,
    progress     = EXCLUDED.progress,
    snapshot     = EXCLUDED.snapshot,
    updated_at   = EXCLUDED.updated_at,
    completed_at = EXCLUDED.completed_at`

func (s *PgExtractionStore) Upsert(ctx context.Context, session *model.ExtractionSession) error {
	session.UpdatedAt = time.Now().UTC()
	snapshot, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session snapshot: %w", err)
	}
	_, err = s.db.Pool().Exec(ctx, upsertSessionSQL,
		session.ID,
		session.ProjectID,
		string(session.Status),
		session.Progress,
		snapshot,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting extraction session %d: %w", session.ID, err)
	}
	return nil
}

func (s *PgExtractionStore) GetByID(ctx context.Context, id int64) (*model.ExtractionSession, error) {
	var snapshot []byte
	err := s.db.Pool().QueryRow(ctx,
		`SELECT snapshot FROM extraction_sessions WHERE id = $1`, id,
	).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching extraction session %d: %w", id, err)
	}

	var session model.ExtractionSession
	if err := json.Unmarshal(snapshot, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session snapshot %d: %w", id, err)
	}
	return &session, nil
}

func (s *PgExtractionStore) ListByProject(ctx context.Context, projectID string, limit int) ([]model.ExtractionSession, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Pool().Query(ctx,
		`SELECT snapshot FROM extraction_sessions
		 WHERE project_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing extraction sessions for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var sessions []model.ExtractionSession
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		var session model.ExtractionSession
		if err := json.Unmarshal(snapshot, &session); err != nil {
			return nil, fmt.Errorf("unmarshaling session snapshot: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
