package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type OntologyClass struct {
	ClassURI    string `json:"class_uri"`
	Label       string `json:"label"`
	ConceptType string `json:"concept_type"`
	Definition  string `json:"definition"`
}

type OntologyRepo struct {
	db *DB
}

func NewOntologyRepo(db *DB) *OntologyRepo {
	return &OntologyRepo{db: db}
}

// FindClass looks up a class by label and concept type, case-insensitively.
func (o *OntologyRepo) FindClass(ctx context.Context, label, conceptType string) (OntologyClass, bool, error) {
	var c OntologyClass
	err := o.db.Pool.QueryRow(ctx,
		`SELECT class_uri, label, concept_type, definition FROM ontology_classes
		 WHERE LOWER(label) = LOWER($1) AND concept_type = $2`, label, conceptType).
		Scan(&c.ClassURI, &c.Label, &c.ConceptType, &c.Definition)
	if errors.Is(err, pgx.ErrNoRows) {
		return OntologyClass{}, false, nil
	}
	if err != nil {
		return OntologyClass{}, false, fmt.Errorf("find class: %w", err)
	}
	return c, true, nil
}

// UpsertClass creates a class if it does not exist. The URI is the identity,
// so a repeated create of the same class is a no-op.
func (o *OntologyRepo) UpsertClass(ctx context.Context, c OntologyClass) error {
	_, err := o.db.Pool.Exec(ctx,
		`INSERT INTO ontology_classes (class_uri, label, concept_type, definition)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (class_uri) DO NOTHING`,
		c.ClassURI, c.Label, c.ConceptType, c.Definition)
	if err != nil {
		return fmt.Errorf("upsert class: %w", err)
	}
	return nil
}

func (o *OntologyRepo) ListClasses(ctx context.Context, conceptType string) ([]OntologyClass, error) {
	query := `SELECT class_uri, label, concept_type, definition FROM ontology_classes`
	args := []any{}
	if conceptType != "" {
		query += ` WHERE concept_type = $1`
		args = append(args, conceptType)
	}
	query += ` ORDER BY label`

	rows, err := o.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var out []OntologyClass
	for rows.Next() {
		var c OntologyClass
		if err := rows.Scan(&c.ClassURI, &c.Label, &c.ConceptType, &c.Definition); err != nil {
			return nil, fmt.Errorf("list classes scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
