package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/internal/models"
)

type CaseRepo struct {
	db *DB
}

func NewCaseRepo(db *DB) *CaseRepo {
	return &CaseRepo{db: db}
}

func (c *CaseRepo) CreateCase(ctx context.Context, cs models.Case, sections []models.CaseSection) error {
	tx, err := c.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create case: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO cases (case_id, title, created_at) VALUES ($1, $2, $3)`,
		cs.CaseID, cs.Title, cs.CreatedAt); err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	for _, s := range sections {
		if _, err := tx.Exec(ctx,
			`INSERT INTO case_sections (case_id, name, content) VALUES ($1, $2, $3)
			 ON CONFLICT (case_id, name) DO UPDATE SET content = EXCLUDED.content`,
			cs.CaseID, s.Name, s.Content); err != nil {
			return fmt.Errorf("insert case section %s: %w", s.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (c *CaseRepo) GetCase(ctx context.Context, caseID string) (models.Case, error) {
	var cs models.Case
	err := c.db.Pool.QueryRow(ctx,
		`SELECT case_id, title, created_at FROM cases WHERE case_id = $1`, caseID).
		Scan(&cs.CaseID, &cs.Title, &cs.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Case{}, fmt.Errorf("case %s: not found", caseID)
	}
	if err != nil {
		return models.Case{}, fmt.Errorf("get case: %w", err)
	}
	return cs, nil
}

func (c *CaseRepo) ListCases(ctx context.Context) ([]models.Case, error) {
	rows, err := c.db.Pool.Query(ctx,
		`SELECT case_id, title, created_at FROM cases ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []models.Case
	for rows.Next() {
		var cs models.Case
		if err := rows.Scan(&cs.CaseID, &cs.Title, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("list cases scan: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// GetSection returns the named section text. name="" means the whole case,
// which is every section joined in a stable order.
func (c *CaseRepo) GetSection(ctx context.Context, caseID, name string) (string, error) {
	if name == "" {
		rows, err := c.db.Pool.Query(ctx,
			`SELECT content FROM case_sections WHERE case_id = $1 ORDER BY name`, caseID)
		if err != nil {
			return "", fmt.Errorf("get sections: %w", err)
		}
		defer rows.Close()

		var whole string
		for rows.Next() {
			var content string
			if err := rows.Scan(&content); err != nil {
				return "", fmt.Errorf("get sections scan: %w", err)
			}
			if whole != "" {
				whole += "\n\n"
			}
			whole += content
		}
		if err := rows.Err(); err != nil {
			return "", err
		}
		if whole == "" {
			return "", fmt.Errorf("case %s: no sections", caseID)
		}
		return whole, nil
	}

	var content string
	err := c.db.Pool.QueryRow(ctx,
		`SELECT content FROM case_sections WHERE case_id = $1 AND name = $2`, caseID, name).
		Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("case %s: section %q not found", caseID, name)
	}
	if err != nil {
		return "", fmt.Errorf("get section: %w", err)
	}
	return content, nil
}
