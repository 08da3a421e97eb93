package storage

import (
	"context"
	"fmt"
	"time"

	"caseflow/internal/models"
)

type CommittedRepo struct {
	db *DB
}

func NewCommittedRepo(db *DB) *CommittedRepo {
	return &CommittedRepo{db: db}
}

// CommitSession copies the staged entities of a session into committed_entities
// and marks the session consumed, all in one transaction. If anything fails the
// staging area is left untouched so the commit can be retried.
func (c *CommittedRepo) CommitSession(ctx context.Context, sessionID string, entities []models.CommittedEntity) error {
	tx, err := c.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit session: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, e := range entities {
		if _, err := tx.Exec(ctx,
			`INSERT INTO committed_entities
			   (entity_id, case_id, step_id, session_id, label, definition, concept_type, class_uri, committed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (entity_id) DO NOTHING`,
			e.EntityID, e.CaseID, e.StepID, e.SessionID, e.Label, e.Definition, e.ConceptType, e.ClassURI, now); err != nil {
			return fmt.Errorf("insert committed entity %s: %w", e.EntityID, err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE extraction_sessions SET consumed = TRUE
		 WHERE session_id = $1 AND NOT discarded`, sessionID)
	if err != nil {
		return fmt.Errorf("consume session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: not live", sessionID)
	}
	return tx.Commit(ctx)
}

func (c *CommittedRepo) ListByCase(ctx context.Context, caseID, stepID string) ([]models.CommittedEntity, error) {
	query := `SELECT entity_id, case_id, step_id, session_id, label, definition, concept_type, class_uri, committed_at
	          FROM committed_entities WHERE case_id = $1`
	args := []any{caseID}
	if stepID != "" {
		query += ` AND step_id = $2`
		args = append(args, stepID)
	}
	query += ` ORDER BY committed_at, entity_id`

	rows, err := c.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list committed entities: %w", err)
	}
	defer rows.Close()

	var out []models.CommittedEntity
	for rows.Next() {
		var e models.CommittedEntity
		if err := rows.Scan(&e.EntityID, &e.CaseID, &e.StepID, &e.SessionID, &e.Label, &e.Definition, &e.ConceptType, &e.ClassURI, &e.CommittedAt); err != nil {
			return nil, fmt.Errorf("list committed entities scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
