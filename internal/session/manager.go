// Package session owns extraction session state transitions: status,
// progress, persistence, and progress events. The pipeline is the single
// writer; the Manager keeps that discipline in one place.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/store"
)

// Progress is recomputed from the current stage, never accumulated, so a
// re-entered stage cannot move the bar backwards past what was reported.
const (
	progressInitializing = 10
	progressComplete     = 100
)

var standardProgress = map[int]int{1: 40, 2: 70, 3: 98}

var comprehensiveProgress = map[int]int{1: 40, 2: 50, 3: 70, 4: 90, 5: 98}

// ProgressForPass returns the progress value reached when the given pass
// completes under a profile.
func ProgressForPass(profile model.PipelineProfile, pass int) int {
	table := standardProgress
	if profile == model.ProfileComprehensive {
		table = comprehensiveProgress
	}
	if p, ok := table[pass]; ok {
		return p
	}
	return progressInitializing
}

// StatusForPass returns the in-flight status for a pass under a profile.
func StatusForPass(profile model.PipelineProfile, pass int) model.SessionStatus {
	if profile == model.ProfileComprehensive {
		switch pass {
		case 1:
			return model.StatusPass1Extract
		case 2:
			return model.StatusPass2Review
		case 3:
			return model.StatusPass3DeepDive
		case 4:
			return model.StatusPass4Validate
		case 5:
			return model.StatusPass5Final
		}
	}
	switch pass {
	case 1:
		return model.StatusPass1Extract
	case 2:
		return model.StatusPass2Review
	case 3:
		return model.StatusPass4Validate
	}
	return model.StatusInitializing
}

// Manager wraps one session with persistence and event emission. It is not
// safe for concurrent use; the owning pipeline calls it from one goroutine.
type Manager struct {
	session  *model.ExtractionSession
	store    store.ExtractionStore
	listener model.ProgressListener
}

func NewManager(session *model.ExtractionSession, st store.ExtractionStore, listener model.ProgressListener) *Manager {
	return &Manager{session: session, store: st, listener: listener}
}

func (m *Manager) Session() *model.ExtractionSession {
	return m.session
}

// Transition moves the session to a new status and progress, persists the
// snapshot, and notifies the listener. Progress never decreases.
func (m *Manager) Transition(ctx context.Context, status model.SessionStatus, progress int, message string) {
	m.session.Status = status
	if progress > m.session.Progress {
		m.session.Progress = progress
	}
	m.session.StatusMessage = message
	m.session.UpdatedAt = time.Now().UTC()

	m.persist(ctx)
	m.emit(message)
}

// BeginPass marks the session as running the given pass.
func (m *Manager) BeginPass(ctx context.Context, pass int, message string) {
	m.session.CurrentPass = pass
	m.Transition(ctx, StatusForPass(m.session.Config.Profile, pass), m.session.Progress, message)
}

// CompletePass records a finished pass and advances progress to the pass's
// target value.
func (m *Manager) CompletePass(ctx context.Context, record model.ExtractionPass, message string) {
	m.session.Passes = append(m.session.Passes, record)
	m.Transition(ctx,
		StatusForPass(m.session.Config.Profile, record.Number),
		ProgressForPass(m.session.Config.Profile, record.Number),
		message)
}

// Complete moves the session to its terminal success state.
func (m *Manager) Complete(ctx context.Context, message string) {
	now := time.Now().UTC()
	m.session.CompletedAt = &now
	m.Transition(ctx, model.StatusCompleted, progressComplete, message)
}

// Fail moves the session to its terminal failure state, keeping whatever
// partial results have accumulated.
func (m *Manager) Fail(ctx context.Context, extractionErr *model.ExtractionError) {
	now := time.Now().UTC()
	m.session.CompletedAt = &now
	message := extractionErr.Error()
	m.session.Error = &message
	m.Transition(ctx, model.StatusFailed, m.session.Progress, message)
}

// persist upserts the current snapshot. Persistence failures are logged and
// swallowed: losing a checkpoint must not kill a run that is otherwise
// making progress against the model.
func (m *Manager) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Upsert(ctx, m.session); err != nil {
		slog.ErrorContext(ctx, "failed to persist session snapshot",
			"session_id", m.session.ID,
			"status", m.session.Status,
			"error", err)
	}
}

func (m *Manager) emit(message string) {
	if m.listener == nil {
		return
	}
	m.listener(model.ProgressEvent{
		SessionID:         m.session.ID,
		Status:            m.session.Status,
		Progress:          m.session.Progress,
		CurrentPass:       m.session.CurrentPass,
		TotalPasses:       m.session.Config.Profile.Passes(),
		Message:           message,
		ItemsFound:        m.session.ItemCount(),
		ObservationsFound: len(m.session.Observations),
		Timestamp:         time.Now().UTC(),
	})
}
