package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"caseflow/internal/models"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `run_id, case_id, step_id, status, entity_count, COALESCE(error_detail, ''), started_at, completed_at, created_at`

func scanRun(row pgx.Row) (models.PipelineRun, error) {
	var r models.PipelineRun
	err := row.Scan(&r.RunID, &r.CaseID, &r.StepID, &r.Status, &r.EntityCount, &r.ErrorDetail, &r.StartedAt, &r.CompletedAt, &r.CreatedAt)
	return r, err
}

func (p *RunRepo) GetRun(ctx context.Context, runID string) (models.PipelineRun, error) {
	row := p.db.Pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = $1`, runID)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PipelineRun{}, fmt.Errorf("run %s: not found", runID)
	}
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ActiveRun returns the queued or running run for a case, if any.
func (p *RunRepo) ActiveRun(ctx context.Context, caseID string) (models.PipelineRun, bool, error) {
	row := p.db.Pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs
		 WHERE case_id = $1 AND status IN ('queued','running')`, caseID)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PipelineRun{}, false, nil
	}
	if err != nil {
		return models.PipelineRun{}, false, fmt.Errorf("active run: %w", err)
	}
	return r, true, nil
}

// CompletedSteps reports which steps have at least one completed run for a case.
func (p *RunRepo) CompletedSteps(ctx context.Context, caseID string) (map[string]bool, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT DISTINCT step_id FROM pipeline_runs
		 WHERE case_id = $1 AND status = 'completed'`, caseID)
	if err != nil {
		return nil, fmt.Errorf("completed steps: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var stepID string
		if err := rows.Scan(&stepID); err != nil {
			return nil, fmt.Errorf("completed steps scan: %w", err)
		}
		done[stepID] = true
	}
	return done, rows.Err()
}

// CreateRun inserts a queued run. created=false means another active run for
// the same case won the race against the partial unique index.
func (p *RunRepo) CreateRun(ctx context.Context, run models.PipelineRun) (bool, error) {
	tag, err := p.db.Pool.Exec(ctx,
		`INSERT INTO pipeline_runs (run_id, case_id, step_id, status, entity_count, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5)
		 ON CONFLICT (case_id) WHERE status IN ('queued','running') DO NOTHING`,
		run.RunID, run.CaseID, run.StepID, run.Status, run.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Transition atomically moves a run out of one of the given statuses. When the
// run is no longer in any of them the stored row is returned with applied=false,
// which makes terminal transitions safe to retry.
func (p *RunRepo) Transition(ctx context.Context, runID string, from []models.RunStatus, to models.RunStatus, entityCount int, errDetail string) (models.PipelineRun, bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	now := time.Now().UTC()
	var startedAt, completedAt *time.Time
	if to == models.RunRunning {
		startedAt = &now
	}
	if to.Terminal() {
		completedAt = &now
	}

	row := p.db.Pool.QueryRow(ctx,
		`UPDATE pipeline_runs
		 SET status = $2,
		     entity_count = GREATEST(entity_count, $3),
		     error_detail = NULLIF($4, ''),
		     started_at = COALESCE($5, started_at),
		     completed_at = COALESCE($6, completed_at)
		 WHERE run_id = $1 AND status = ANY($7)
		 RETURNING `+runColumns,
		runID, to, entityCount, errDetail, startedAt, completedAt, fromStrs)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		stored, gerr := p.GetRun(ctx, runID)
		if gerr != nil {
			return models.PipelineRun{}, false, gerr
		}
		return stored, false, nil
	}
	if err != nil {
		return models.PipelineRun{}, false, fmt.Errorf("transition run: %w", err)
	}
	return r, true, nil
}

// ListRuns returns the run history for a case, newest first.
func (p *RunRepo) ListRuns(ctx context.Context, caseID string) ([]models.PipelineRun, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs
		 WHERE case_id = $1 ORDER BY created_at DESC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentFailures returns the most recently failed runs with their error detail,
// newest first.
func (p *RunRepo) RecentFailures(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs
		 WHERE status = 'failed'
		 ORDER BY completed_at DESC NULLS LAST, created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	defer rows.Close()

	var out []models.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("recent failures scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountActive returns the number of queued or running runs across all cases.
func (p *RunRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := p.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pipeline_runs WHERE status IN ('queued','running')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active runs: %w", err)
	}
	return n, nil
}
