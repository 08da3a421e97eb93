package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"caseflow/internal/models"
)

type EntityRepo struct {
	db *DB
}

func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

const entityColumns = `entity_id, session_id, label, definition, concept_type, status, COALESCE(class_uri, ''), original_label, original_definition, created_at, updated_at`

func scanEntity(row pgx.Row) (models.StagedEntity, error) {
	var e models.StagedEntity
	err := row.Scan(&e.EntityID, &e.SessionID, &e.Label, &e.Definition, &e.ConceptType, &e.Status, &e.ClassURI, &e.OriginalLabel, &e.OriginalDefinition, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// StageEntities inserts a batch of staged entities in one transaction.
func (r *EntityRepo) StageEntities(ctx context.Context, entities []models.StagedEntity) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin stage entities: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		if _, err := tx.Exec(ctx,
			`INSERT INTO staged_entities
			   (entity_id, session_id, label, definition, concept_type, status, class_uri,
			    original_label, original_definition, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $10)
			 ON CONFLICT (entity_id) DO NOTHING`,
			e.EntityID, e.SessionID, e.Label, e.Definition, e.ConceptType, e.Status,
			e.ClassURI, e.OriginalLabel, e.OriginalDefinition, e.CreatedAt); err != nil {
			return fmt.Errorf("insert staged entity %s: %w", e.EntityID, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *EntityRepo) GetEntity(ctx context.Context, entityID string) (models.StagedEntity, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM staged_entities WHERE entity_id = $1`, entityID)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StagedEntity{}, fmt.Errorf("staged entity %s: not found", entityID)
	}
	if err != nil {
		return models.StagedEntity{}, fmt.Errorf("get staged entity: %w", err)
	}
	return e, nil
}

func (r *EntityRepo) ListBySession(ctx context.Context, sessionID string) ([]models.StagedEntity, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+entityColumns+` FROM staged_entities
		 WHERE session_id = $1 ORDER BY created_at, entity_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list staged entities: %w", err)
	}
	defer rows.Close()

	var out []models.StagedEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list staged entities scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEntity writes the editable fields of a staged entity.
func (r *EntityRepo) UpdateEntity(ctx context.Context, e models.StagedEntity) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE staged_entities
		 SET label = $2, definition = $3, status = $4, class_uri = NULLIF($5, ''), updated_at = $6
		 WHERE entity_id = $1`,
		e.EntityID, e.Label, e.Definition, e.Status, e.ClassURI, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update staged entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("staged entity %s: not found", e.EntityID)
	}
	return nil
}

func (r *EntityRepo) DeleteEntities(ctx context.Context, sessionID string, entityIDs []string) (int, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM staged_entities WHERE session_id = $1 AND entity_id = ANY($2)`,
		sessionID, entityIDs)
	if err != nil {
		return 0, fmt.Errorf("delete staged entities: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
