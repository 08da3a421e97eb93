package ontology

import (
	"context"
	"strings"

	"caseflow/internal/models"
)

// Class is an ontology class an extracted entity can be typed against.
type Class struct {
	URI         string `json:"uri"`
	Label       string `json:"label"`
	ConceptType string `json:"concept_type"`
	Definition  string `json:"definition"`
}

// Resolver matches candidate entity labels against the ontology and creates
// approved classes. CreateClass must be idempotent: the URI is derived from
// the label and concept type, so a repeated create returns the same class.
type Resolver interface {
	ResolveClass(ctx context.Context, label string, conceptType models.ConceptType) (Class, bool, error)
	CreateClass(ctx context.Context, label string, conceptType models.ConceptType, definition string) (Class, error)
}

// ClassURI builds the deterministic URI for a class. Repeated approvals of the
// same label and type land on the same URI.
func ClassURI(namespace, label string, conceptType models.ConceptType) string {
	return strings.TrimRight(namespace, "/") + "/" + string(conceptType) + "/" + Slug(label)
}

// Slug lowercases a label and collapses non-alphanumeric runs to hyphens.
func Slug(label string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
