package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"caseflow/internal/models"
	"caseflow/internal/pipeline"

	"github.com/google/uuid"
)

var ErrNotQueued = errors.New("queue entry not found or not queued")

// Store is the persistence surface of the queue. The production implementation
// is storage.QueueRepo.
type Store interface {
	Enqueue(ctx context.Context, entry models.QueueEntry) (bool, error)
	NextQueued(ctx context.Context) (models.QueueEntry, bool, error)
	MarkRunning(ctx context.Context, entryID, runID string) (bool, error)
	Remove(ctx context.Context, entryID string) (bool, error)
	ClearQueued(ctx context.Context) (int, error)
	Reorder(ctx context.Context, entryIDs []string) error
	ListActive(ctx context.Context) ([]models.QueueEntry, error)
	CountRunning(ctx context.Context) (int, error)
	Settle(ctx context.Context, runID string, status models.RunStatus) error
}

// WorkflowStarter hides the Temporal client so the manager is testable.
type WorkflowStarter interface {
	StartStepRun(ctx context.Context, run models.PipelineRun) error
}

// Manager owns the case queue: FIFO dispatch of queued cases into pipeline
// runs, bounded by MaxConcurrent.
type Manager struct {
	store         Store
	machine       *pipeline.StateMachine
	starter       WorkflowStarter
	maxConcurrent int
	interval      time.Duration
}

func NewManager(store Store, machine *pipeline.StateMachine, starter WorkflowStarter, maxConcurrent int, interval time.Duration) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Manager{
		store:         store,
		machine:       machine,
		starter:       starter,
		maxConcurrent: maxConcurrent,
		interval:      interval,
	}
}

// Enqueue appends a case to the queue tail. A case already queued or running
// is not enqueued twice; the existing entry is returned with created=false.
func (m *Manager) Enqueue(ctx context.Context, caseID, stepID string) (models.QueueEntry, bool, error) {
	if _, ok := pipeline.StepByID(stepID); !ok {
		return models.QueueEntry{}, false, fmt.Errorf("%w: %s", pipeline.ErrUnknownStep, stepID)
	}
	entry := models.QueueEntry{
		EntryID:    uuid.NewString(),
		CaseID:     caseID,
		StepID:     stepID,
		Status:     models.QueueEntryQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	created, err := m.store.Enqueue(ctx, entry)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if !created {
		existing, err := m.findActiveEntry(ctx, caseID)
		if err != nil {
			return models.QueueEntry{}, false, err
		}
		return existing, false, nil
	}
	return entry, true, nil
}

func (m *Manager) findActiveEntry(ctx context.Context, caseID string) (models.QueueEntry, error) {
	entries, err := m.store.ListActive(ctx)
	if err != nil {
		return models.QueueEntry{}, err
	}
	for _, e := range entries {
		if e.CaseID == caseID {
			return e, nil
		}
	}
	return models.QueueEntry{}, fmt.Errorf("active entry for case %s not found", caseID)
}

// Remove drops a queued entry. Running entries must be cancelled through the
// run, not removed from the queue.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	removed, err := m.store.Remove(ctx, entryID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotQueued
	}
	return nil
}

// Clear drops every queued entry. Running entries keep running.
func (m *Manager) Clear(ctx context.Context) (int, error) {
	return m.store.ClearQueued(ctx)
}

// Reorder moves the given queued entries to the head, in the given order.
func (m *Manager) Reorder(ctx context.Context, entryIDs []string) error {
	return m.store.Reorder(ctx, entryIDs)
}

// Snapshot is the queue state the status endpoint serves.
type Snapshot struct {
	Entries       []models.QueueEntry `json:"entries"`
	Running       int                 `json:"running"`
	MaxConcurrent int                 `json:"max_concurrent"`
}

// Status returns the active queue plus dispatch capacity.
func (m *Manager) Status(ctx context.Context) (Snapshot, error) {
	entries, err := m.store.ListActive(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	running, err := m.store.CountRunning(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Entries:       entries,
		Running:       running,
		MaxConcurrent: m.maxConcurrent,
	}, nil
}

// ProcessNext dispatches the queue head if a slot is free. It returns whether
// an entry was dispatched.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	running, err := m.store.CountRunning(ctx)
	if err != nil {
		return false, err
	}
	if running >= m.maxConcurrent {
		return false, nil
	}

	entry, ok, err := m.store.NextQueued(ctx)
	if err != nil || !ok {
		return false, err
	}

	run, err := m.machine.Advance(ctx, entry.CaseID, entry.StepID, pipeline.AdvanceOptions{})
	if err != nil {
		// A conflicting run means someone advanced the case directly; drop
		// the entry rather than block the queue head forever.
		if errors.Is(err, pipeline.ErrRunConflict) || errors.Is(err, pipeline.ErrPrerequisiteNotMet) {
			_, _ = m.store.Remove(ctx, entry.EntryID)
			return false, fmt.Errorf("dispatch %s: %w", entry.EntryID, err)
		}
		return false, err
	}

	taken, err := m.store.MarkRunning(ctx, entry.EntryID, run.RunID)
	if err != nil {
		return false, err
	}
	if !taken {
		// Entry was removed between peek and take. The run still exists, so
		// cancel it through the state machine.
		_, _ = m.machine.MarkCancelled(ctx, run.RunID)
		return false, nil
	}

	if err := m.starter.StartStepRun(ctx, run); err != nil {
		_, _ = m.machine.MarkFailed(ctx, run.RunID, "start workflow: "+err.Error())
		_ = m.store.Settle(ctx, run.RunID, models.RunFailed)
		return false, err
	}
	return true, nil
}

// Run is the dispatcher loop. It polls the queue until the context ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				dispatched, err := m.ProcessNext(ctx)
				if err != nil {
					log.Printf("queue dispatch: %v", err)
					break
				}
				if !dispatched {
					break
				}
			}
		}
	}
}
