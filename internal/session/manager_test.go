package session

import (
	"context"
	"errors"
	"testing"

	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/store"
)

func TestProgressForPass(t *testing.T) {
	tests := []struct {
		profile model.PipelineProfile
		pass    int
		want    int
	}{
		{model.ProfileStandard, 1, 40},
		{model.ProfileStandard, 2, 70},
		{model.ProfileStandard, 3, 98},
		{model.ProfileComprehensive, 1, 40},
		{model.ProfileComprehensive, 2, 50},
		{model.ProfileComprehensive, 3, 70},
		{model.ProfileComprehensive, 4, 90},
		{model.ProfileComprehensive, 5, 98},
		{model.ProfileStandard, 99, 10},
	}

	for _, tt := range tests {
		got := ProgressForPass(tt.profile, tt.pass)
		if got != tt.want {
			t.Errorf("ProgressForPass(%s, %d) = %d, want %d", tt.profile, tt.pass, got, tt.want)
		}
	}
}

func TestStatusForPass(t *testing.T) {
	tests := []struct {
		profile model.PipelineProfile
		pass    int
		want    model.SessionStatus
	}{
		{model.ProfileStandard, 1, model.StatusPass1Extract},
		{model.ProfileStandard, 2, model.StatusPass2Review},
		// The standard profile's third pass is validation, not deep dive.
		{model.ProfileStandard, 3, model.StatusPass4Validate},
		{model.ProfileComprehensive, 3, model.StatusPass3DeepDive},
		{model.ProfileComprehensive, 4, model.StatusPass4Validate},
		{model.ProfileComprehensive, 5, model.StatusPass5Final},
	}

	for _, tt := range tests {
		got := StatusForPass(tt.profile, tt.pass)
		if got != tt.want {
			t.Errorf("StatusForPass(%s, %d) = %q, want %q", tt.profile, tt.pass, got, tt.want)
		}
	}
}

func newTestManager(listener model.ProgressListener) (*Manager, *store.MemoryExtractionStore) {
	st := store.NewMemoryExtractionStore()
	sess := &model.ExtractionSession{
		ID:     42,
		Config: model.ExtractionConfig{Profile: model.ProfileStandard}.Normalized(),
		Status: model.StatusQueued,
	}
	return NewManager(sess, st, listener), st
}

func TestTransitionPersistsAndEmits(t *testing.T) {
	var events []model.ProgressEvent
	mgr, st := newTestManager(func(e model.ProgressEvent) { events = append(events, e) })
	ctx := context.Background()

	mgr.Transition(ctx, model.StatusInitializing, 10, "Preparing documents")

	stored, err := st.GetByID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != model.StatusInitializing || stored.Progress != 10 {
		t.Errorf("stored = %s/%d", stored.Status, stored.Progress)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].SessionID != 42 || events[0].Message != "Preparing documents" {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].TotalPasses != 3 {
		t.Errorf("total passes = %d, want 3", events[0].TotalPasses)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	mgr, _ := newTestManager(nil)
	ctx := context.Background()

	mgr.Transition(ctx, model.StatusPass2Review, 70, "")
	mgr.Transition(ctx, model.StatusPass2Review, 40, "")

	if got := mgr.Session().Progress; got != 70 {
		t.Errorf("progress = %d, want 70", got)
	}
}

func TestCompletePassAdvances(t *testing.T) {
	mgr, _ := newTestManager(nil)
	ctx := context.Background()

	mgr.BeginPass(ctx, 1, "Extracting work packages")
	if mgr.Session().CurrentPass != 1 {
		t.Errorf("current pass = %d, want 1", mgr.Session().CurrentPass)
	}
	if mgr.Session().Status != model.StatusPass1Extract {
		t.Errorf("status = %q", mgr.Session().Status)
	}

	mgr.CompletePass(ctx, model.ExtractionPass{Number: 1, Purpose: model.PurposeExtract}, "done")
	if mgr.Session().Progress != 40 {
		t.Errorf("progress = %d, want 40", mgr.Session().Progress)
	}
	if len(mgr.Session().Passes) != 1 {
		t.Errorf("pass records = %d, want 1", len(mgr.Session().Passes))
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	mgr, _ := newTestManager(nil)
	ctx := context.Background()

	mgr.Complete(ctx, "Extraction complete")

	sess := mgr.Session()
	if sess.Status != model.StatusCompleted || sess.Progress != 100 {
		t.Errorf("session = %s/%d", sess.Status, sess.Progress)
	}
	if sess.CompletedAt == nil {
		t.Error("completed at not set")
	}
	if !sess.Status.Terminal() {
		t.Error("completed status not terminal")
	}
}

func TestFailKeepsPartialState(t *testing.T) {
	mgr, st := newTestManager(nil)
	ctx := context.Background()
	sess := mgr.Session()
	sess.WorkPackages = []model.ExtractedWorkPackage{{PackageID: "MEC", Trade: "Mechanical"}}
	sess.Progress = 40

	mgr.Fail(ctx, &model.ExtractionError{
		Code:       model.ErrCodeTimeout,
		Message:    "model call timed out",
		PassNumber: 2,
	})

	if sess.Status != model.StatusFailed {
		t.Errorf("status = %q", sess.Status)
	}
	if sess.Error == nil || *sess.Error == "" {
		t.Error("error message not recorded")
	}
	if sess.Progress != 40 {
		t.Errorf("progress = %d, failure must not reset progress", sess.Progress)
	}

	stored, err := st.GetByID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(stored.WorkPackages) != 1 {
		t.Error("partial packages lost on failure")
	}
}

type failingStore struct{}

func (failingStore) Upsert(context.Context, *model.ExtractionSession) error {
	return errors.New("db unavailable")
}
func (failingStore) GetByID(context.Context, int64) (*model.ExtractionSession, error) {
	return nil, store.ErrNotFound
}
func (failingStore) ListByProject(context.Context, string, int) ([]model.ExtractionSession, error) {
	return nil, nil
}

func TestPersistFailureDoesNotPanic(t *testing.T) {
	sess := &model.ExtractionSession{ID: 7, Config: model.ExtractionConfig{}.Normalized()}
	mgr := NewManager(sess, failingStore{}, nil)

	mgr.Transition(context.Background(), model.StatusInitializing, 10, "")

	if sess.Status != model.StatusInitializing {
		t.Errorf("status = %q, transition must proceed despite persist failure", sess.Status)
	}
}
