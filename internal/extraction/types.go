package extraction

import "caseflow/internal/models"

// Candidate is one entity proposed by the LLM before it is staged for review.
type Candidate struct {
	Label       string             `json:"label"`
	Definition  string             `json:"definition"`
	ConceptType models.ConceptType `json:"concept_type"`
}
