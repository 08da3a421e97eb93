package pipeline

import (
	"context"
	"fmt"
	"time"

	"caseflow/internal/models"

	"github.com/google/uuid"
)

// RunStore is the persistence surface the state machine drives. The production
// implementation is storage.RunRepo; tests use an in-memory fake.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (models.PipelineRun, error)
	// ActiveRun returns the case's queued-or-running run, if any.
	ActiveRun(ctx context.Context, caseID string) (models.PipelineRun, bool, error)
	// CompletedSteps reports the step ids for which the case has a completed run.
	CompletedSteps(ctx context.Context, caseID string) (map[string]bool, error)
	// CreateRun inserts a queued run. created=false means another active run won
	// the race for the case's single active slot.
	CreateRun(ctx context.Context, run models.PipelineRun) (created bool, err error)
	// Transition atomically moves a run out of an active status. applied=false
	// means the run was not in any of the from statuses; the stored run is
	// returned either way.
	Transition(ctx context.Context, runID string, from []models.RunStatus, to models.RunStatus, entityCount int, errDetail string) (models.PipelineRun, bool, error)
}

// AdvanceOptions carries the caller's choice for conflicting active runs:
// reject (default) or mark the prior run superseded and start fresh.
type AdvanceOptions struct {
	Supersede bool
}

// StateMachine is the single authority over Pipeline Run transitions. Every
// component that moves a run between statuses goes through it; transitions into
// a terminal status are idempotent so the scheduler's at-least-once delivery
// cannot double-apply them.
type StateMachine struct {
	runs RunStore
}

func NewStateMachine(runs RunStore) *StateMachine {
	return &StateMachine{runs: runs}
}

// Advance validates prerequisites and the single-active-run invariant, then
// creates a new queued run for (caseID, stepID).
func (m *StateMachine) Advance(ctx context.Context, caseID, stepID string, opts AdvanceOptions) (models.PipelineRun, error) {
	step, ok := StepByID(stepID)
	if !ok {
		return models.PipelineRun{}, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}

	completed, err := m.runs.CompletedSteps(ctx, caseID)
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("load completed steps: %w", err)
	}
	for _, pre := range step.Prerequisites {
		if !completed[pre] {
			return models.PipelineRun{}, fmt.Errorf("%w: %s requires %s", ErrPrerequisiteNotMet, stepID, pre)
		}
	}

	active, exists, err := m.runs.ActiveRun(ctx, caseID)
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("load active run: %w", err)
	}
	if exists {
		if !opts.Supersede {
			return models.PipelineRun{}, fmt.Errorf("%w: run %s is %s", ErrRunConflict, active.RunID, active.Status)
		}
		if _, _, err := m.runs.Transition(ctx, active.RunID, []models.RunStatus{models.RunQueued, models.RunRunning}, models.RunSuperseded, 0, "superseded by new run"); err != nil {
			return models.PipelineRun{}, fmt.Errorf("supersede run %s: %w", active.RunID, err)
		}
	}

	run := models.PipelineRun{
		RunID:     uuid.NewString(),
		CaseID:    caseID,
		StepID:    stepID,
		Status:    models.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	created, err := m.runs.CreateRun(ctx, run)
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("create run: %w", err)
	}
	if !created {
		// Lost the race against a concurrent Advance for the same case.
		return models.PipelineRun{}, fmt.Errorf("%w: concurrent advance for case %s", ErrRunConflict, caseID)
	}
	return run, nil
}

func (m *StateMachine) GetRun(ctx context.Context, runID string) (models.PipelineRun, error) {
	return m.runs.GetRun(ctx, runID)
}

// MarkRunning moves a queued run to running. Repeated calls are no-ops.
func (m *StateMachine) MarkRunning(ctx context.Context, runID string) (models.PipelineRun, error) {
	run, _, err := m.runs.Transition(ctx, runID, []models.RunStatus{models.RunQueued}, models.RunRunning, 0, "")
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("mark running %s: %w", runID, err)
	}
	return run, nil
}

func (m *StateMachine) MarkCompleted(ctx context.Context, runID string, entityCount int) (models.PipelineRun, error) {
	return m.markTerminal(ctx, runID, models.RunCompleted, entityCount, "")
}

func (m *StateMachine) MarkFailed(ctx context.Context, runID, errDetail string) (models.PipelineRun, error) {
	return m.markTerminal(ctx, runID, models.RunFailed, 0, errDetail)
}

func (m *StateMachine) MarkCancelled(ctx context.Context, runID string) (models.PipelineRun, error) {
	return m.markTerminal(ctx, runID, models.RunCancelled, 0, "")
}

// markTerminal applies a terminal status exactly once. If the run already
// reached a terminal status the stored state is returned unchanged, so
// duplicate deliveries from the scheduler observe the first outcome.
func (m *StateMachine) markTerminal(ctx context.Context, runID string, to models.RunStatus, entityCount int, errDetail string) (models.PipelineRun, error) {
	run, _, err := m.runs.Transition(ctx, runID, []models.RunStatus{models.RunQueued, models.RunRunning}, to, entityCount, errDetail)
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("mark %s %s: %w", to, runID, err)
	}
	return run, nil
}
