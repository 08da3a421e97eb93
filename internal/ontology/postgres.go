package ontology

import (
	"context"
	"fmt"

	"caseflow/internal/models"
	"caseflow/internal/storage"
)

// PostgresResolver keeps the ontology in the service's own database. It is the
// default when no external ontology service is configured.
type PostgresResolver struct {
	repo      *storage.OntologyRepo
	namespace string
}

func NewPostgresResolver(repo *storage.OntologyRepo, namespace string) *PostgresResolver {
	return &PostgresResolver{repo: repo, namespace: namespace}
}

func (p *PostgresResolver) ResolveClass(ctx context.Context, label string, conceptType models.ConceptType) (Class, bool, error) {
	c, found, err := p.repo.FindClass(ctx, label, string(conceptType))
	if err != nil {
		return Class{}, false, fmt.Errorf("resolve class: %w", err)
	}
	if !found {
		return Class{}, false, nil
	}
	return Class{URI: c.ClassURI, Label: c.Label, ConceptType: c.ConceptType, Definition: c.Definition}, true, nil
}

func (p *PostgresResolver) CreateClass(ctx context.Context, label string, conceptType models.ConceptType, definition string) (Class, error) {
	c := Class{
		URI:         ClassURI(p.namespace, label, conceptType),
		Label:       label,
		ConceptType: string(conceptType),
		Definition:  definition,
	}
	err := p.repo.UpsertClass(ctx, storage.OntologyClass{
		ClassURI:    c.URI,
		Label:       c.Label,
		ConceptType: c.ConceptType,
		Definition:  c.Definition,
	})
	if err != nil {
		return Class{}, fmt.Errorf("create class: %w", err)
	}
	return c, nil
}
