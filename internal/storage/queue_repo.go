package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/internal/models"
)

type QueueRepo struct {
	db *DB
}

func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db}
}

const queueColumns = `entry_id, case_id, step_id, COALESCE(run_id::text, ''), status, position, enqueued_at`

func scanQueueEntry(row pgx.Row) (models.QueueEntry, error) {
	var e models.QueueEntry
	err := row.Scan(&e.EntryID, &e.CaseID, &e.StepID, &e.RunID, &e.Status, &e.Position, &e.EnqueuedAt)
	return e, err
}

// Enqueue appends an entry at the tail of the queue. created=false means the
// case already has a queued or running entry.
func (q *QueueRepo) Enqueue(ctx context.Context, entry models.QueueEntry) (bool, error) {
	tag, err := q.db.Pool.Exec(ctx,
		`INSERT INTO queue_entries (entry_id, case_id, step_id, status, position, enqueued_at)
		 SELECT $1, $2, $3, 'queued', COALESCE(MAX(position), 0) + 1, $4 FROM queue_entries
		 ON CONFLICT (case_id) WHERE status IN ('queued','running') DO NOTHING`,
		entry.EntryID, entry.CaseID, entry.StepID, entry.EnqueuedAt)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// NextQueued returns the head of the queue, if any.
func (q *QueueRepo) NextQueued(ctx context.Context) (models.QueueEntry, bool, error) {
	row := q.db.Pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_entries
		 WHERE status = 'queued' ORDER BY position LIMIT 1`)
	e, err := scanQueueEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueEntry{}, false, nil
	}
	if err != nil {
		return models.QueueEntry{}, false, fmt.Errorf("next queued: %w", err)
	}
	return e, true, nil
}

// MarkRunning ties a queue entry to its run. applied=false means the entry was
// already taken or removed.
func (q *QueueRepo) MarkRunning(ctx context.Context, entryID, runID string) (bool, error) {
	tag, err := q.db.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = 'running', run_id = $2
		 WHERE entry_id = $1 AND status = 'queued'`, entryID, runID)
	if err != nil {
		return false, fmt.Errorf("mark queue entry running: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Settle records the terminal status of the run a queue entry dispatched.
func (q *QueueRepo) Settle(ctx context.Context, runID string, status models.RunStatus) error {
	_, err := q.db.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = $2
		 WHERE run_id = $1 AND status = 'running'`, runID, status)
	if err != nil {
		return fmt.Errorf("settle queue entry: %w", err)
	}
	return nil
}

// Remove deletes a queued entry. Running entries are not removable here.
func (q *QueueRepo) Remove(ctx context.Context, entryID string) (bool, error) {
	tag, err := q.db.Pool.Exec(ctx,
		`DELETE FROM queue_entries WHERE entry_id = $1 AND status = 'queued'`, entryID)
	if err != nil {
		return false, fmt.Errorf("remove queue entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearQueued deletes every queued entry and returns how many were dropped.
func (q *QueueRepo) ClearQueued(ctx context.Context) (int, error) {
	tag, err := q.db.Pool.Exec(ctx, `DELETE FROM queue_entries WHERE status = 'queued'`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Reorder assigns fresh positions to the given queued entries, head first.
// Entries not listed keep their relative order after the listed ones.
func (q *QueueRepo) Reorder(ctx context.Context, entryIDs []string) error {
	tx, err := q.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback(ctx)

	// Shift everything out of the way, then place the requested entries first.
	if _, err := tx.Exec(ctx,
		`UPDATE queue_entries SET position = position + $1 WHERE status = 'queued'`,
		int64(len(entryIDs))); err != nil {
		return fmt.Errorf("reorder shift: %w", err)
	}
	for i, id := range entryIDs {
		tag, err := tx.Exec(ctx,
			`UPDATE queue_entries SET position = $2 WHERE entry_id = $1 AND status = 'queued'`,
			id, int64(i+1))
		if err != nil {
			return fmt.Errorf("reorder entry %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("queue entry %s: not queued", id)
		}
	}
	return tx.Commit(ctx)
}

// ListActive returns queued and running entries in dispatch order.
func (q *QueueRepo) ListActive(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := q.db.Pool.Query(ctx,
		`SELECT `+queueColumns+` FROM queue_entries
		 WHERE status IN ('queued','running') ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list queue scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountRunning returns the number of entries currently dispatched.
func (q *QueueRepo) CountRunning(ctx context.Context) (int, error) {
	var n int
	err := q.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE status = 'running'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count running: %w", err)
	}
	return n, nil
}
