package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// MemoryExtractionStore is an in-process ExtractionStore for local runs and
// tests. Snapshots are deep-copied through JSON so callers cannot mutate
// stored state through retained pointers.
type MemoryExtractionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*model.ExtractionSession
}

func NewMemoryExtractionStore() *MemoryExtractionStore {
	return &MemoryExtractionStore{sessions: make(map[int64]*model.ExtractionSession)}
}

func (s *MemoryExtractionStore) Upsert(_ context.Context, session *model.ExtractionSession) error {
	session.UpdatedAt = time.Now().UTC()
	copied, err := copySession(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[session.ID] = copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryExtractionStore) GetByID(_ context.Context, id int64) (*model.ExtractionSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(session)
}

func (s *MemoryExtractionStore) ListByProject(_ context.Context, projectID string, limit int) ([]model.ExtractionSession, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	var matched []*model.ExtractionSession
	for _, session := range s.sessions {
		if session.ProjectID == projectID {
			matched = append(matched, session)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]model.ExtractionSession, 0, len(matched))
	for _, session := range matched {
		copied, err := copySession(session)
		if err != nil {
			return nil, err
		}
		out = append(out, *copied)
	}
	return out, nil
}

func copySession(session *model.ExtractionSession) (*model.ExtractionSession, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	var copied model.ExtractionSession
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, err
	}
	return &copied, nil
}
