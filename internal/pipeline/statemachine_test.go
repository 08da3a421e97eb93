package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"caseflow/internal/models"
)

// fakeRunStore mirrors the partial-unique-index semantics of the real repo.
type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]models.PipelineRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]models.PipelineRun{}}
}

func (f *fakeRunStore) GetRun(ctx context.Context, runID string) (models.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[runID]
	if !ok {
		return models.PipelineRun{}, ErrRunNotFound
	}
	return r, nil
}

func (f *fakeRunStore) ActiveRun(ctx context.Context, caseID string) (models.PipelineRun, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		if r.CaseID == caseID && r.Status.Active() {
			return r, true, nil
		}
	}
	return models.PipelineRun{}, false, nil
}

func (f *fakeRunStore) CompletedSteps(ctx context.Context, caseID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	done := map[string]bool{}
	for _, r := range f.runs {
		if r.CaseID == caseID && r.Status == models.RunCompleted {
			done[r.StepID] = true
		}
	}
	return done, nil
}

func (f *fakeRunStore) CreateRun(ctx context.Context, run models.PipelineRun) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		if r.CaseID == run.CaseID && r.Status.Active() {
			return false, nil
		}
	}
	f.runs[run.RunID] = run
	return true, nil
}

func (f *fakeRunStore) Transition(ctx context.Context, runID string, from []models.RunStatus, to models.RunStatus, entityCount int, errDetail string) (models.PipelineRun, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[runID]
	if !ok {
		return models.PipelineRun{}, false, ErrRunNotFound
	}
	for _, s := range from {
		if r.Status == s {
			r.Status = to
			if entityCount > r.EntityCount {
				r.EntityCount = entityCount
			}
			r.ErrorDetail = errDetail
			now := time.Now().UTC()
			if to == models.RunRunning {
				r.StartedAt = &now
			}
			if to.Terminal() {
				r.CompletedAt = &now
			}
			f.runs[runID] = r
			return r, true, nil
		}
	}
	return r, false, nil
}

func completeStep(t *testing.T, m *StateMachine, store *fakeRunStore, caseID, stepID string) {
	t.Helper()
	run, err := m.Advance(context.Background(), caseID, stepID, AdvanceOptions{})
	require.NoError(t, err)
	_, err = m.MarkRunning(context.Background(), run.RunID)
	require.NoError(t, err)
	_, err = m.MarkCompleted(context.Background(), run.RunID, 3)
	require.NoError(t, err)
}

func TestAdvanceEnforcesStepOrder(t *testing.T) {
	store := newFakeRunStore()
	m := NewStateMachine(store)

	_, err := m.Advance(context.Background(), "case-1", "step2-pass1", AdvanceOptions{})
	require.ErrorIs(t, err, ErrPrerequisiteNotMet)

	_, err = m.Advance(context.Background(), "case-1", "nope", AdvanceOptions{})
	require.ErrorIs(t, err, ErrUnknownStep)

	completeStep(t, m, store, "case-1", "step1-pass1")
	completeStep(t, m, store, "case-1", "step1-pass2")

	run, err := m.Advance(context.Background(), "case-1", "step2-pass1", AdvanceOptions{})
	require.NoError(t, err)
	require.Equal(t, models.RunQueued, run.Status)
}

func TestAdvanceRejectsSecondActiveRun(t *testing.T) {
	store := newFakeRunStore()
	m := NewStateMachine(store)

	first, err := m.Advance(context.Background(), "case-1", "step1-pass1", AdvanceOptions{})
	require.NoError(t, err)

	_, err = m.Advance(context.Background(), "case-1", "step1-pass1", AdvanceOptions{})
	require.ErrorIs(t, err, ErrRunConflict)

	// Supersede replaces the active run instead of rejecting.
	replacement, err := m.Advance(context.Background(), "case-1", "step1-pass1", AdvanceOptions{Supersede: true})
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, replacement.RunID)

	old, err := m.GetRun(context.Background(), first.RunID)
	require.NoError(t, err)
	require.Equal(t, models.RunSuperseded, old.Status)
}

func TestTerminalTransitionsAreIdempotent(t *testing.T) {
	store := newFakeRunStore()
	m := NewStateMachine(store)

	run, err := m.Advance(context.Background(), "case-1", "step1-pass1", AdvanceOptions{})
	require.NoError(t, err)
	_, err = m.MarkRunning(context.Background(), run.RunID)
	require.NoError(t, err)

	done, err := m.MarkCompleted(context.Background(), run.RunID, 5)
	require.NoError(t, err)
	require.Equal(t, models.RunCompleted, done.Status)
	require.Equal(t, 5, done.EntityCount)

	// A duplicate delivery of a different terminal status observes the
	// first outcome instead of overwriting it.
	again, err := m.MarkFailed(context.Background(), run.RunID, "late failure")
	require.NoError(t, err)
	require.Equal(t, models.RunCompleted, again.Status)
	require.Equal(t, 5, again.EntityCount)
}

func TestMarkRunningOnlyFromQueued(t *testing.T) {
	store := newFakeRunStore()
	m := NewStateMachine(store)

	run, err := m.Advance(context.Background(), "case-1", "step1-pass1", AdvanceOptions{})
	require.NoError(t, err)
	_, err = m.MarkCancelled(context.Background(), run.RunID)
	require.NoError(t, err)

	got, err := m.MarkRunning(context.Background(), run.RunID)
	require.NoError(t, err)
	require.Equal(t, models.RunCancelled, got.Status)
}
